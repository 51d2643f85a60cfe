package provision

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/appliance-control/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Appliance Control Setup</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
h2 { font-size: 1.1em; margin-top: 1.5em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
input { font-family: monospace; padding: 4px; margin: 2px 0; width: 100%; box-sizing: border-box; }
button { font-family: monospace; padding: 6px 12px; margin: 4px 4px 4px 0; cursor: pointer; }
.danger { color: #fff; background: #c62828; border: 1px solid #c62828; }
#networks div { padding: 4px 8px; border-bottom: 1px solid #ddd; cursor: pointer; }
#networks div:hover { background: #eee; }
#msg { margin: 1em 0; }
.ok { color: green; }
.err { color: red; }
</style>
</head>
<body>
<h1>Appliance Control Setup</h1>

<table>
<tr><th>Mode</th><td>{{.Mode}}</td></tr>
{{if .SSID}}<tr><th>Network</th><td>{{.SSID}}</td></tr>{{end}}
{{if .IP}}<tr><th>IP</th><td>{{.IP}}</td></tr>{{end}}
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
</table>

<div id="msg"></div>

<h2>WiFi</h2>
<button onclick="scan()">Scan networks</button>
<div id="networks"></div>
<input type="text" id="ssid" placeholder="SSID">
<input type="password" id="password" placeholder="Password">
<button onclick="connect()">Connect</button>

<h2>Control secret</h2>
<input type="password" id="secret" placeholder="Control secret">
<button onclick="setSecret()">Update secret</button>

<h2>Factory reset</h2>
<button class="danger" onclick="clearConfig()">Clear stored settings</button>

<script>
function show(text, cls) {
  var el = document.getElementById('msg');
  el.textContent = text;
  el.className = cls;
}
function scan() {
  show('scanning...', '');
  fetch('/scan').then(function(r) { return r.json(); }).then(function(networks) {
    var list = document.getElementById('networks');
    list.innerHTML = '';
    networks.forEach(function(n) {
      var div = document.createElement('div');
      div.textContent = n.ssid + ' (' + n.rssi + ' dBm, ' + n.encryption + ')';
      div.onclick = function() { document.getElementById('ssid').value = n.ssid; };
      list.appendChild(div);
    });
    show('found ' + networks.length + ' networks', 'ok');
  }).catch(function(e) { show('scan failed: ' + e, 'err'); });
}
function connect() {
  var ssid = document.getElementById('ssid').value;
  var password = document.getElementById('password').value;
  if (!ssid) { show('enter an SSID', 'err'); return; }
  show('connecting to ' + ssid + '...', '');
  fetch('/connect?ssid=' + encodeURIComponent(ssid) + '&password=' + encodeURIComponent(password))
    .then(function(r) { return r.json(); }).then(function(res) {
      if (res.success) {
        show('connected, device is restarting', 'ok');
      } else {
        show('failed: ' + res.message, 'err');
      }
    }).catch(function(e) { show('error: ' + e, 'err'); });
}
function setSecret() {
  var secret = document.getElementById('secret').value;
  if (!secret) { show('enter a secret', 'err'); return; }
  fetch('/setpassword?password=' + encodeURIComponent(secret))
    .then(function(r) { return r.json(); }).then(function(res) {
      show(res.success ? 'secret updated' : 'failed: ' + res.message, res.success ? 'ok' : 'err');
    }).catch(function(e) { show('error: ' + e, 'err'); });
}
function clearConfig() {
  if (!confirm('Clear all stored settings and restart?')) return;
  fetch('/clear').then(function(r) { return r.json(); }).then(function(res) {
    show(res.success ? 'cleared, device is restarting' : 'failed: ' + res.message, res.success ? 'ok' : 'err');
  }).catch(function(e) { show('error: ' + e, 'err'); });
}
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	if err := indexTmpl.Execute(w, snap); err != nil {
		log.Printf("provision: render index: %v", err)
	}
}
