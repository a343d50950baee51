package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/mseaborn/nacl-dev-tools/internal/bump"
	"github.com/mseaborn/nacl-dev-tools/internal/changelog"
	"github.com/mseaborn/nacl-dev-tools/internal/config"
	"github.com/mseaborn/nacl-dev-tools/internal/history"
	"github.com/mseaborn/nacl-dev-tools/internal/lkgr"
	"github.com/mseaborn/nacl-dev-tools/internal/logging"
	"github.com/mseaborn/nacl-dev-tools/internal/notify"
	"github.com/mseaborn/nacl-dev-tools/internal/review"
	"github.com/mseaborn/nacl-dev-tools/internal/scheduler"
	"github.com/mseaborn/nacl-dev-tools/internal/vcs"
)

// env holds the collaborators for one profile
type env struct {
	cfg      *config.Config
	name     string
	profile  config.ProfileConfig
	checkout string
	log      *zap.Logger
	git      *vcs.Git
	source   vcs.RevisionSource
	store    *history.Store
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithLocalFallback(configPath)
}

// setup loads the config and builds the collaborators. The caller must
// call close.
func setup() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	name := profileName
	if name == "" {
		name = cfg.General.DefaultProfile
	}
	profile, err := cfg.Profile(name)
	if err != nil {
		return nil, err
	}

	level := logLevel
	if level == "" {
		level = cfg.General.LogLevel
	}
	log, err := logging.New(level)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("profile", name))

	checkout, err := filepath.Abs(cfg.General.Checkout)
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg:      cfg,
		name:     name,
		profile:  profile,
		checkout: checkout,
		log:      log,
		git:      vcs.NewGit(checkout, nil),
	}

	switch profile.Upstream.Kind {
	case "svn":
		e.source = vcs.NewSVN(profile.Upstream.URL, profile.Upstream.RootURL, nil)
	case "git":
		dir := profile.Upstream.GitDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(checkout, dir)
		}
		e.source = vcs.NewGitSource(dir, profile.Upstream.GitRef, true, nil)
	default:
		return nil, fmt.Errorf("unknown upstream kind %q", profile.Upstream.Kind)
	}

	e.store, err = history.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return e, nil
}

func (e *env) close() {
	if e.store != nil {
		e.store.Close()
	}
	_ = e.log.Sync()
}

func (e *env) oracle() *lkgr.Client {
	c := e.cfg.LKGR
	return lkgr.NewClient(c.URL, c.LogPath, c.Timeout.Duration, afero.NewOsFs(), e.log)
}

func (e *env) evaluator() *scheduler.Evaluator {
	ev := &scheduler.Evaluator{
		Profile:      e.name,
		Branches:     e.git,
		Source:       e.source,
		History:      e.git,
		BranchPrefix: e.profile.BranchPrefix,
		BaseRef:      e.profile.BaseRef,
		Manifest:     e.profile.Manifest.Path,
		Field:        e.profile.Manifest.Field,
		QuietPeriod:  e.profile.Upstream.QuietPeriod.Duration,
		Thresholds: scheduler.Thresholds{
			Revisions: e.cfg.Schedule.RevsThreshold,
			Age:       e.cfg.Schedule.TimeThreshold.Duration,
		},
		Log: e.log,
	}
	if e.cfg.LKGR.Enabled {
		ev.Oracle = e.oracle()
	}
	return ev
}

func (e *env) executor() *bump.Executor {
	p := e.profile
	return &bump.Executor{
		Profile:          e.name,
		Checkout:         e.git,
		Source:           e.source,
		Reviewer:         review.NewDispatcher(e.checkout, review.Commands{
			Upload: e.cfg.Review.UploadCommand,
			Try:    e.cfg.Review.TryCommand,
			Issue:  e.cfg.Review.IssueCommand,
		}, nil),
		FS:               afero.NewBasePathFs(afero.NewOsFs(), e.checkout),
		ManifestPath:     p.Manifest.Path,
		Field:            p.Manifest.Field,
		PinHash:          p.Manifest.Pin == config.PinHash,
		Companions:       p.Manifest.Companions,
		UpstreamManifest: p.Upstream.Manifest,
		BranchPrefix:     p.BranchPrefix,
		BaseRef:          p.BaseRef,
		QuietPeriod:      p.Upstream.QuietPeriod.Duration,
		Component:        p.Message.Component,
		Test:             p.Message.Test,
		Changelog: changelog.Options{
			Style:     changelog.Style(p.Message.Style),
			BotAuthor: p.Message.BotAuthor,
			BotMarker: p.Message.BotMarker,
			CC:        p.Message.CC,
		},
		Bots:     e.cfg.Review.Bots,
		History:  e.store,
		Notifier: notify.FromConfig(e.cfg.Notifications),
		Log:      e.log,
	}
}
