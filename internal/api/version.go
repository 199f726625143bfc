package api

import (
	"encoding/json"
	"net/http"
	"runtime"
)

type versionResponse struct {
	Success   bool   `json:"success"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// VersionHandler reports build metadata set through ldflags. Empty fields
// fall back to "dev" and "unknown".
func VersionHandler(build BuildInfo) http.Handler {
	response := versionResponse{
		Success:   true,
		Version:   orDefault(build.Version, "dev"),
		GitCommit: orDefault(build.GitCommit, "unknown"),
		BuildDate: orDefault(build.BuildDate, "unknown"),
		GoVersion: runtime.Version(),
	}
	payload, _ := json.Marshal(response)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	})
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
