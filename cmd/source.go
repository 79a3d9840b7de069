package main

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadpipe/internal/pipeline"
	"github.com/sells-group/leadpipe/pkg/apify"
	"github.com/sells-group/leadpipe/pkg/linkedin"
)

// buildSource maps the --source/--input/--post/--actor flags onto a
// candidate source.
func buildSource(source, input, postID, actorID string) (pipeline.Source, error) {
	switch source {
	case "file":
		if input == "" {
			return nil, eris.New("--input is required with --source file")
		}
		return pipeline.NewFileSource(input), nil
	case "reactions":
		if cfg.LinkedIn.Key == "" {
			return nil, eris.New("linkedin.key is required with --source reactions")
		}
		client := linkedin.NewClient(cfg.LinkedIn.Key, linkedin.WithBaseURL(cfg.LinkedIn.BaseURL))
		delay := time.Duration(cfg.LinkedIn.PageDelayMs) * time.Millisecond
		return pipeline.NewReactionsSource(client, postID, delay), nil
	case "jobs":
		if cfg.Apify.Key == "" {
			return nil, eris.New("apify.key is required with --source jobs")
		}
		if actorID == "" {
			actorID = cfg.Apify.ActorID
		}
		client := apify.NewClient(cfg.Apify.Key, apify.WithBaseURL(cfg.Apify.BaseURL))
		return pipeline.NewJobsSource(client, actorID), nil
	default:
		return nil, eris.Errorf("unknown source %q (want file, reactions, or jobs)", source)
	}
}
