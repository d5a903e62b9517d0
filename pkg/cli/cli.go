package cli

import (
	"context"
	"flag"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/igolaizola/songclip/pkg/cmd/image"
	"github.com/igolaizola/songclip/pkg/cmd/loop"
	"github.com/igolaizola/songclip/pkg/cmd/serve"
	"github.com/igolaizola/songclip/pkg/cmd/sessions"
	"github.com/igolaizola/songclip/pkg/cmd/song"
	synccmd "github.com/igolaizola/songclip/pkg/cmd/sync"
	"github.com/igolaizola/songclip/pkg/cmd/usage"
	"github.com/igolaizola/songclip/pkg/cmd/video"
	"github.com/peterbourgon/ff/ffyaml"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

func New(version, commit, date string) *ffcli.Command {
	fs := flag.NewFlagSet("songclip", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "songclip [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(version, commit, date),
			newSongCommand(),
			newImageCommand(),
			newVideoCommand(),
			newLoopCommand(),
			newSessionsCommand(),
			newUsageCommand(),
			newSyncCommand(),
			newServeCommand(),
		},
	}
}

func newVersionCommand(version, commit, date string) *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "songclip version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

func options() []ff.Option {
	return []ff.Option{
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parser),
		ff.WithEnvVarPrefix("SONGCLIP"),
	}
}

// songFlags registers the flags shared by every command that builds the
// full pipeline.
func songFlags(fs *flag.FlagSet, cfg *song.Config) {
	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.Output, "output", "output", "output directory for sessions")
	fs.StringVar(&cfg.Proxy, "proxy", "", "proxy url (optional)")
	fs.StringVar(&cfg.DBType, "db-type", "", "usage db type (sqlite, mysql, postgres), empty disables tracking")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.SunoAPIKey, "suno-key", "", "sunoapi.org api key")
	fs.StringVar(&cfg.SunoBase, "suno-base", "", "sunoapi.org base url (optional)")
	fs.StringVar(&cfg.ReplicateToken, "replicate-token", "", "replicate api token")
	fs.StringVar(&cfg.ReplicateBase, "replicate-base", "", "replicate base url (optional)")
	fs.StringVar(&cfg.OpenAIKey, "openai-key", "", "openai api key for theme based lyrics (optional)")
	fs.StringVar(&cfg.OpenAIModel, "openai-model", "", "openai model (optional)")
	fs.StringVar(&cfg.FFmpegBin, "ffmpeg-bin", "ffmpeg", "path to the ffmpeg binary")
	fs.StringVar(&cfg.FFprobeBin, "ffprobe-bin", "ffprobe", "path to the ffprobe binary")
	fs.IntVar(&cfg.Workers, "workers", 2, "concurrent video renders")
	fs.StringVar(&cfg.Prompt, "prompt", "", "song lyrics or description")
	fs.StringVar(&cfg.Style, "style", "", "music style")
	fs.StringVar(&cfg.Title, "title", "", "song title")
	fs.StringVar(&cfg.Model, "model", "", "music model version (V3_5, V4, V4_5)")
	fs.BoolVar(&cfg.CustomMode, "custom", true, "use lyrics, style and title verbatim")
	fs.BoolVar(&cfg.Instrumental, "instrumental", false, "generate without vocals")
	fs.StringVar(&cfg.Describe, "describe", "", "write title, style and lyrics for this description before submitting")
	fs.BoolVar(&cfg.NoImage, "no-image", false, "skip the cover image and video stages")
	fs.BoolVar(&cfg.NoVideo, "no-video", false, "generate the cover but skip the video stage")
}

func newSongCommand() *ffcli.Command {
	cmd := "song"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &song.Config{}
	songFlags(fs, cfg)

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("songclip %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "generate a song with cover image and lyric video",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return song.Run(ctx, cfg)
		},
	}
}

func newImageCommand() *ffcli.Command {
	cmd := "image"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &image.Config{}
	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.Output, "output", "output", "output directory for sessions")
	fs.StringVar(&cfg.DBType, "db-type", "", "usage db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.ReplicateToken, "replicate-token", "", "replicate api token")
	fs.StringVar(&cfg.ReplicateBase, "replicate-base", "", "replicate base url (optional)")
	fs.StringVar(&cfg.SessionID, "session", "", "session id to generate the cover for")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("songclip %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "generate or retry the cover image of a session",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return image.Run(ctx, cfg)
		},
	}
}

func newVideoCommand() *ffcli.Command {
	cmd := "video"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &video.Config{}
	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.Output, "output", "output", "output directory for sessions")
	fs.StringVar(&cfg.DBType, "db-type", "", "usage db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.ReplicateToken, "replicate-token", "", "replicate api token")
	fs.StringVar(&cfg.ReplicateBase, "replicate-base", "", "replicate base url (optional)")
	fs.StringVar(&cfg.FFmpegBin, "ffmpeg-bin", "ffmpeg", "path to the ffmpeg binary")
	fs.StringVar(&cfg.FFprobeBin, "ffprobe-bin", "ffprobe", "path to the ffprobe binary")
	fs.IntVar(&cfg.Workers, "workers", 2, "concurrent video renders")
	fs.StringVar(&cfg.SessionID, "session", "", "session id to animate")
	fs.BoolVar(&cfg.RenderOnly, "render-only", false, "re-run only the loop and caption stage")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("songclip %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "generate or retry the animated video of a session",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return video.Run(ctx, cfg)
		},
	}
}

func newLoopCommand() *ffcli.Command {
	cmd := "loop"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &loop.Config{}
	songFlags(fs, &cfg.Song)
	fs.IntVar(&cfg.Limit, "limit", 0, "number of sessions to generate, 0 runs until interrupted")
	fs.IntVar(&cfg.Concurrency, "concurrency", 1, "concurrent sessions")
	fs.DurationVar(&cfg.Wait, "wait", 2*time.Second, "wait between launching sessions")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("songclip %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "generate sessions in a batch",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return loop.Run(ctx, cfg)
		},
	}
}

func newSessionsCommand() *ffcli.Command {
	cmd := "sessions"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &sessions.Config{}
	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.Output, "output", "output", "output directory for sessions")
	fs.StringVar(&cfg.SessionID, "session", "", "print one session in detail")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("songclip %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "list sessions and their stage state",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return sessions.Run(ctx, cfg)
		},
	}
}

func newUsageCommand() *ffcli.Command {
	cmd := "usage"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &usage.Config{}
	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "", "usage db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.IntVar(&cfg.Days, "days", 30, "number of days to aggregate")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("songclip %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "print aggregated service usage and cost",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return usage.Run(ctx, cfg)
		},
	}
}

func newSyncCommand() *ffcli.Command {
	cmd := "sync"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &synccmd.Config{}
	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.Output, "output", "output", "output directory for sessions")
	fs.StringVar(&cfg.FSType, "fs-type", "", "file storage type (local, s3)")
	fs.StringVar(&cfg.FSConn, "fs-conn", "", "path for local, key:secret@bucket.region for s3")
	fs.StringVar(&cfg.SessionID, "session", "", "sync only this session")
	fs.BoolVar(&cfg.OnlyComplete, "only-complete", false, "skip sessions without a final video")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("songclip %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "upload session artifacts to file storage",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return synccmd.Run(ctx, cfg)
		},
	}
}

func newServeCommand() *ffcli.Command {
	cmd := "serve"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &serve.Config{}
	songFlags(fs, &cfg.Song)
	fs.StringVar(&cfg.Addr, "addr", ":8080", "listen address")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("songclip %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "serve the pipeline and session store over http",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return serve.Serve(ctx, cfg)
		},
	}
}
