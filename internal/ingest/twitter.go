package ingest

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadpipe/internal/fetcher"
	"github.com/sells-group/leadpipe/internal/model"
)

// TwitterCSV parses a profile export and maps each data row onto a candidate.
// The header row is required; columns are matched by name, not position.
func TwitterCSV(ctx context.Context, r io.Reader) (*Result, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader:  true,
		HeaderCh:   headerCh,
		TrimSpace:  true,
		LazyQuotes: true,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "ingest: stream csv")
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, eris.New("ingest: csv has no header row")
	}

	return TwitterRows(header, rows), nil
}

// TwitterRows maps already-parsed rows onto candidates. XLSX uploads land
// here directly, with the sheet's first row as the header.
//
// Description is the one required column: the qualifier has nothing to work
// with without profile text. A row missing it is dropped and counted, never
// an error.
func TwitterRows(header []string, rows [][]string) *Result {
	res := newResult()
	idx := mapHeader(header)

	for i, row := range rows {
		username := strings.TrimPrefix(col(row, idx, "username"), "@")
		name := col(row, idx, "name")
		description := col(row, idx, "description")

		if description == "" {
			res.drop(DropMissingDescription)
			continue
		}
		if name == "" && username == "" {
			res.drop(DropMissingName)
			continue
		}
		if name == "" {
			name = username
		}

		var profileURL string
		if username != "" {
			profileURL = "https://twitter.com/" + username
		}

		res.Candidates = append(res.Candidates, model.Candidate{
			ID:          candidateID(model.SourceTwitterCSV, strconv.Itoa(i), username, name),
			Source:      model.SourceTwitterCSV,
			Name:        name,
			Description: description,
			Location:    col(row, idx, "location"),
			Metric:      col(row, idx, "followers"),
			ProfileURL:  profileURL,
		})
	}

	return res
}
