package server

import (
	"html/template"
	"log/slog"
	"net/http"
)

// indexTemplate lists jobs and follows the newest running one over SSE.
var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>tilefit</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
td, th { padding: 4px 10px; border-bottom: 1px solid #ddd; text-align: left; }
img { image-rendering: pixelated; border: 1px solid #ccc; max-width: 45%; }
</style>
</head>
<body>
<h1>Jobs</h1>
{{if .Jobs}}
<table>
<tr><th>ID</th><th>State</th><th>Reference</th><th>Scorer</th><th>Rounds</th><th>Final score</th><th>Error</th></tr>
{{range .Jobs}}
<tr>
<td><a href="#" onclick="follow('{{.ID}}'); return false;">{{.ID}}</a></td>
<td>{{.State}}</td>
<td>{{.Config.RefPath}}</td>
<td>{{.Config.Scorer}}</td>
<td>{{.Rounds}} / {{.Tiles}}</td>
<td>{{printf "%.4f" .FinalScore}}</td>
<td>{{.Error}}</td>
</tr>
{{end}}
</table>
{{else}}
<p>No jobs yet. POST a config to <code>/api/v1/jobs</code>.</p>
{{end}}

<h2 id="title"></h2>
<p id="status"></p>
<img id="canvas" alt="">
<img id="diff" alt="">

<script>
let source = null;
function follow(id) {
  if (source) source.close();
  document.getElementById("title").textContent = id;
  const base = "/api/v1/jobs/" + id;
  const refresh = () => {
    const t = Date.now();
    document.getElementById("canvas").src = base + "/canvas.png?t=" + t;
    document.getElementById("diff").src = base + "/diff.png?t=" + t;
  };
  source = new EventSource(base + "/stream");
  source.onmessage = (msg) => {
    const ev = JSON.parse(msg.data);
    document.getElementById("status").textContent =
      ev.state + ": round " + ev.round + " of " + ev.total + ", score " + ev.score;
    refresh();
    if (ev.state !== "pending" && ev.state !== "running") source.close();
  };
}
{{with .Follow}}follow("{{.}}");{{end}}
</script>
</body>
</html>
`))

type indexData struct {
	Jobs   []Job
	Follow string
}

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := indexData{Jobs: s.jobManager.ListJobs()}
	for i := len(data.Jobs) - 1; i >= 0; i-- {
		if !data.Jobs[i].State.Terminal() {
			data.Follow = data.Jobs[i].ID
			break
		}
	}
	if data.Follow == "" && len(data.Jobs) > 0 {
		data.Follow = data.Jobs[len(data.Jobs)-1].ID
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		slog.Error("Failed to render index", "error", err)
	}
}
