package pipeline

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/fetcher"
	"github.com/sells-group/leadpipe/internal/ingest"
	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/pkg/apify"
	"github.com/sells-group/leadpipe/pkg/linkedin"
)

// FileSource reads a candidate file from local disk, HTTP, or FTP and ingests
// it by extension: .csv and .xlsx as Twitter community exports, .json as a
// dataset of job-posting items, .zip as an archive holding one of those.
type FileSource struct {
	path string
	http *fetcher.HTTPFetcher
	ftp  *fetcher.FTPFetcher
}

// NewFileSource builds a source for a local path or an http(s)/ftp URL.
func NewFileSource(p string) *FileSource {
	return &FileSource{
		path: p,
		http: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}),
		ftp:  fetcher.NewFTPFetcher(fetcher.FTPOptions{}),
	}
}

// Name maps the file to a pipeline source. JSON files carry job-posting
// items; everything else is a Twitter community export.
func (s *FileSource) Name() model.Source {
	if strings.EqualFold(filepath.Ext(strings.TrimSuffix(s.path, "/")), ".json") {
		return model.SourceLinkedInJobs
	}
	return model.SourceTwitterCSV
}

// Fetch downloads the file when remote, unpacks it when zipped, and ingests
// it by extension.
func (s *FileSource) Fetch(ctx context.Context) (*ingest.Result, error) {
	local, cleanup, err := s.localize(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if strings.EqualFold(filepath.Ext(local), ".zip") {
		dir, err := os.MkdirTemp("", "leadpipe-zip")
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: temp dir")
		}
		defer os.RemoveAll(dir)
		local, err = fetcher.ExtractZIPSingle(local, dir)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: extract %s", s.path)
		}
	}

	switch strings.ToLower(filepath.Ext(local)) {
	case ".csv":
		f, err := os.Open(local)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: open %s", local)
		}
		defer f.Close()
		return ingest.TwitterCSV(ctx, f)

	case ".xlsx":
		rows, err := fetcher.ReadXLSX(local, fetcher.XLSXOptions{})
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: read %s", local)
		}
		if len(rows) == 0 {
			return nil, eris.Errorf("pipeline: %s is empty", s.path)
		}
		return ingest.TwitterRows(rows[0], rows[1:]), nil

	case ".json":
		f, err := os.Open(local)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: open %s", local)
		}
		defer f.Close()
		items, errs := fetcher.DecodeJSONArray[json.RawMessage](ctx, f)
		var collected []json.RawMessage
		for item := range items {
			collected = append(collected, item)
		}
		if err := <-errs; err != nil {
			return nil, eris.Wrapf(err, "pipeline: decode %s", local)
		}
		return ingest.JobItems(collected), nil

	default:
		return nil, eris.Errorf("pipeline: unsupported file type %q", filepath.Ext(local))
	}
}

// localize makes the candidate file available on local disk, downloading
// remote URLs into a temp dir the returned cleanup removes.
func (s *FileSource) localize(ctx context.Context) (string, func(), error) {
	isFTP := strings.HasPrefix(s.path, "ftp://")
	isHTTP := strings.HasPrefix(s.path, "http://") || strings.HasPrefix(s.path, "https://")
	if !isFTP && !isHTTP {
		return s.path, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "leadpipe-fetch")
	if err != nil {
		return "", nil, eris.Wrap(err, "pipeline: temp dir")
	}
	cleanup := func() { os.RemoveAll(dir) }

	local := filepath.Join(dir, remoteBase(s.path))
	if isFTP {
		_, err = s.ftp.DownloadToFile(ctx, s.path, local)
	} else {
		_, err = s.http.DownloadToFile(ctx, s.path, local)
	}
	if err != nil {
		cleanup()
		return "", nil, eris.Wrapf(err, "pipeline: download %s", s.path)
	}
	return local, cleanup, nil
}

// remoteBase picks a local filename for a URL, keeping the extension the
// ingest dispatch keys on.
func remoteBase(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || path.Base(u.Path) == "." || path.Base(u.Path) == "/" {
		return "download"
	}
	return path.Base(u.Path)
}

// ReactionsSource lists everyone who reacted to a LinkedIn post, page by
// page, pausing between page requests.
type ReactionsSource struct {
	client linkedin.Client
	postID string
	delay  time.Duration
}

// NewReactionsSource builds a source over the reactions of one post.
func NewReactionsSource(client linkedin.Client, postID string, delay time.Duration) *ReactionsSource {
	return &ReactionsSource{client: client, postID: postID, delay: delay}
}

func (s *ReactionsSource) Name() model.Source { return model.SourceLinkedInPosts }

func (s *ReactionsSource) Fetch(ctx context.Context) (*ingest.Result, error) {
	if s.postID == "" {
		return nil, eris.New("pipeline: linkedin post id is required")
	}

	var reactions []linkedin.Reaction
	for page := 1; ; page++ {
		pg, err := s.client.Reactions(ctx, s.postID, page)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: reactions page %d", page)
		}
		reactions = append(reactions, pg.Reactions...)
		if page >= pg.TotalPages {
			break
		}
		if err := sleepCtx(ctx, s.delay); err != nil {
			return nil, err
		}
	}

	zap.L().Info("pipeline: reactions fetched",
		zap.String("post_id", s.postID),
		zap.Int("reactions", len(reactions)),
	)
	return ingest.Reactions(reactions), nil
}

// JobsSource ingests the dataset of the most recent finished scrape of the
// job-postings actor.
type JobsSource struct {
	client  apify.Client
	actorID string
}

// NewJobsSource builds a source over an Apify actor's latest dataset.
func NewJobsSource(client apify.Client, actorID string) *JobsSource {
	return &JobsSource{client: client, actorID: actorID}
}

func (s *JobsSource) Name() model.Source { return model.SourceLinkedInJobs }

func (s *JobsSource) Fetch(ctx context.Context) (*ingest.Result, error) {
	if s.actorID == "" {
		return nil, eris.New("pipeline: apify actor id is required")
	}

	run, err := s.client.LatestSucceededRun(ctx, s.actorID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: latest run of actor %s", s.actorID)
	}
	items, err := s.client.AllDatasetItems(ctx, run.DefaultDatasetID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: dataset %s", run.DefaultDatasetID)
	}

	zap.L().Info("pipeline: dataset fetched",
		zap.String("actor_id", s.actorID),
		zap.String("apify_run", run.ID),
		zap.Int("items", len(items)),
	)
	return ingest.JobItems(items), nil
}
