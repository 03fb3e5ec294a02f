package server

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// indexPage is the single inspector page: it pulls a snapshot over the
// websocket and applies deltas live. Hand-written as a ComponentFunc; one
// internal page does not warrant a templ generate step.
func indexPage() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, indexHTML)
		return err
	})
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>treescope</title>
<style>
body { font-family: ui-monospace, monospace; margin: 2rem; background: #111; color: #ddd; }
h1 { font-size: 1.2rem; }
#status { color: #8c8; }
#status.down { color: #c66; }
ul { list-style: none; padding-left: 1.2rem; border-left: 1px solid #333; }
li > span { cursor: default; }
.payload { color: #789; font-size: 0.85em; margin-left: 0.6em; }
</style>
</head>
<body>
<h1>treescope <span id="status">connecting…</span></h1>
<div id="tree"></div>
<script>
(function () {
  var status = document.getElementById("status");
  var container = document.getElementById("tree");
  var nodes = {};   // id -> {parent, children:[], payload}

  function render() {
    container.textContent = "";
    var root = nodes[0];
    if (!root) return;
    container.appendChild(renderNode(0));
  }

  function renderNode(id) {
    var n = nodes[id];
    var li = document.createElement("li");
    var label = document.createElement("span");
    label.textContent = "#" + id;
    li.appendChild(label);
    if (n.payload) {
      var p = document.createElement("span");
      p.className = "payload";
      p.textContent = JSON.stringify(n.payload);
      li.appendChild(p);
    }
    if (n.children && n.children.length) {
      var ul = document.createElement("ul");
      n.children.forEach(function (c) {
        if (nodes[c]) ul.appendChild(renderNode(c));
      });
      li.appendChild(ul);
    }
    var wrap = document.createElement("ul");
    wrap.appendChild(li);
    return wrap;
  }

  function refetch() {
    fetch("/api/tree").then(function (r) { return r.json(); }).then(function (body) {
      nodes = {};
      (body.nodes || []).forEach(function (n) {
        nodes[n.id] = { parent: n.parent, children: n.children || [], payload: n.payload };
      });
      render();
    });
  }

  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var ws = new WebSocket(proto + "//" + location.host + "/ws");
  ws.onopen = function () { status.textContent = "live"; status.className = ""; };
  ws.onclose = function () { status.textContent = "disconnected"; status.className = "down"; };
  ws.onmessage = function (ev) {
    var msg = JSON.parse(ev.data);
    if (msg.type === "snapshot") {
      nodes = {};
      (msg.nodes || []).forEach(function (n) {
        nodes[n.id] = { parent: n.parent, children: n.children || [], payload: n.payload };
      });
      render();
    } else if (msg.type === "delta") {
      // Deltas carry membership only; refetch for structure.
      refetch();
    }
  };
})();
</script>
</body>
</html>
`
