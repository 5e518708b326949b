package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"
)

type AboutResponse struct {
	Service    string            `json:"service"`
	NowUTC     string            `json:"now_utc"`
	GoVersion  string            `json:"go_version"`
	ModulePath string            `json:"module_path,omitempty"`
	Version    string            `json:"version,omitempty"`
	Commit     string            `json:"commit,omitempty"`
	Dirty      bool              `json:"dirty,omitempty"`
	BuildTime  string            `json:"build_time,omitempty"`
	Deps       map[string]string `json:"deps,omitempty"`
}

func readAbout() AboutResponse {
	resp := AboutResponse{
		Service:   "flightreplay",
		NowUTC:    time.Now().UTC().Format(time.RFC3339Nano),
		GoVersion: runtime.Version(),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return resp
	}
	resp.ModulePath = bi.Main.Path
	resp.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			resp.Commit = s.Value
		case "vcs.modified":
			resp.Dirty = s.Value == "true"
		case "vcs.time":
			resp.BuildTime = s.Value
		}
	}
	if len(bi.Deps) > 0 {
		resp.Deps = make(map[string]string, len(bi.Deps))
		for _, d := range bi.Deps {
			resp.Deps[d.Path] = d.Version
		}
	}
	return resp
}

func AboutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, readAbout())
	})
}
