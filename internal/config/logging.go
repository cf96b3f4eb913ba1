package config

import (
	"io"
	"log/slog"
)

// InstallLogger makes a JSON handler writing to w the slog default, at info
// level. Binaries call it before loading the config so that config errors are
// logged in the same format; the returned LevelVar is then set from
// LogConfig.SlogLevel.
func InstallLogger(w io.Writer) *slog.LevelVar {
	lv := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv})))
	return lv
}
