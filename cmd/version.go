package cmd

import (
	"encoding/json"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/shelfindex/internal/config"
	"github.com/derickschaefer/shelfindex/internal/model"
	"github.com/derickschaefer/shelfindex/internal/render"
)

// Version and BuildTime are set at link time:
//
//	go build -ldflags "-X github.com/derickschaefer/shelfindex/cmd.Version=v0.3.1 \
//	  -X github.com/derickschaefer/shelfindex/cmd.BuildTime=2026-02-16T12:00:00Z"
var (
	Version   = "v0.3.0"
	BuildTime = ""
)

type versionInfo struct {
	Version    string   `json:"version"`
	GoVersion  string   `json:"go_version"`
	Platform   string   `json:"platform"`
	BuildTime  string   `json:"build_time,omitempty"`
	Strategies []string `json:"strategies"`
	Sources    []string `json:"sources"`
}

func currentVersion() versionInfo {
	return versionInfo{
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		BuildTime:  BuildTime,
		Strategies: []string{string(model.StrategyCompound), string(model.StrategyNearest)},
		Sources:    []string{config.SourceStore, config.SourcePostgres, config.SourceFeed},
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the shelfindex version, strategies and sources",
	Example: `  shelfindex version
  shelfindex version --format json | jq .strategies`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentVersion()
		w := cmd.OutOrStdout()

		switch globalFlags.Format {
		case render.FormatJSON:
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		case render.FormatJSONL:
			return json.NewEncoder(w).Encode(info)
		}

		rows := [][]string{
			{"shelfindex", info.Version},
			{"go", info.GoVersion},
			{"platform", info.Platform},
			{"strategies", strings.Join(info.Strategies, ", ")},
			{"sources", strings.Join(info.Sources, ", ")},
		}
		if info.BuildTime != "" {
			rows = append(rows, []string{"built", info.BuildTime})
		}
		printKVTable(w, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
