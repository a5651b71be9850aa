package web

import (
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"github.com/sweeney/defcon/internal/level"
	"github.com/sweeney/defcon/internal/status"
)

// pageLevels are the levels offered as links; 9 is shown as X.
var pageLevels = []int{0, 1, 2, 3, 4, 5, 6, level.Off}

type levelLink struct {
	Query string
	Label string
	On    bool
}

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"levelName": func(l int) string {
		if l == level.Off {
			return "off"
		}
		if l == level.Unset {
			return "none"
		}
		return strconv.Itoa(l)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>DEFCON</title>
<style>
body { font-family: sans-serif; background: #8cf; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
a.defcon { text-decoration: none; border: 1px solid black; border-radius: 50%; margin: 2px; padding: 3px; display: inline-block; width: 1em; text-align: center; color: black; }
a.on { border: 3px solid black; }
a.d1 { background-color: white; }
a.d2 { background-color: red; }
a.d3 { background-color: yellow; }
a.d4 { background-color: green; color: white; }
a.d5 { background-color: blue; color: white; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #68a; }
th { width: 40%; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>DEFCON</h1>

<p id="levels">{{range .Links}}<a href="?{{.Query}}" class="defcon d{{.Query}}{{if .On}} on{{end}}">{{.Label}}</a>{{end}}</p>

<h2>State</h2>
<table>
<tr><th>Level</th><td id="level">{{levelName .Level}}</td></tr>
<tr><th>Outputs</th><td>{{levelName .Committed}}</td></tr>
<tr><th>Reasons</th><td>{{range .ReasonIDs}}{{.}} {{else}}none{{end}}</td></tr>
{{if not .LastChange.IsZero}}<tr><th>Last change</th><td>{{.LastChange.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Commits</th><td>{{.Counts.Commits}}</td></tr>
<tr><th>Debounced</th><td>{{.Counts.Discarded}}</td></tr>
<tr><th>Beeps</th><td>{{.Counts.Beeps}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Blink below</th><td>{{.Config.BlinkThreshold}}</td></tr>
<tr><th>Beep below</th><td>{{.Config.BeepThreshold}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
{{if .Config.DryRun}}<tr><th>Outputs</th><td>dry run</td></tr>{{end}}
</table>

<p><a href="/?-">-</a> | <a href="/?+">+</a> | <a href="/index.json">JSON</a></p>
</body>
</html>
`

func links(current int) []levelLink {
	out := make([]levelLink, 0, len(pageLevels))
	for _, l := range pageLevels {
		label := strconv.Itoa(l)
		if l == level.Off {
			label = "X"
		}
		out = append(out, levelLink{Query: strconv.Itoa(l), Label: label, On: l == current})
	}
	return out
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime    time.Duration
		Links     []levelLink
		ReasonIDs []int
	}{
		Snapshot:  snap,
		Uptime:    snap.Uptime(),
		Links:     links(snap.Level),
		ReasonIDs: status.ReasonIDs(snap.Reasons),
	}
	return indexTmpl.Execute(w, data)
}
