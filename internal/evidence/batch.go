package evidence

import (
	"context"
	"time"

	"tradeproof/internal/geo"
	"tradeproof/pkg/types"

	"golang.org/x/sync/errgroup"
)

// BatchUpload shares one description and type across several files.
type BatchUpload struct {
	JobID           string
	EvidenceType    types.EvidenceType
	Description     string
	Files           []File
	GPS             *geo.Reading
	DeviceTimestamp *time.Time
	Meta            types.RequestMeta
}

type FileResult struct {
	Filename   string  `json:"filename"`
	Success    bool    `json:"success"`
	EvidenceID string  `json:"evidence_id,omitempty"`
	Hash       *string `json:"hash,omitempty"`
	Path       *string `json:"file_path,omitempty"`
	Error      string  `json:"error,omitempty"`
}

type BatchResult struct {
	Results   []FileResult `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// AllSucceeded reports whether every file made it through.
func (b *BatchResult) AllSucceeded() bool {
	return b.Failed == 0
}

// IngestBatch runs every file through Ingest independently. One file failing
// never affects another; results keep the order of in.Files.
func (s *Service) IngestBatch(ctx context.Context, scope types.Scope, in BatchUpload) (*BatchResult, error) {

	if err := scope.Validate(); err != nil {
		return nil, err
	}

	if len(in.Files) == 0 {
		return nil, types.Validationf("At least one file is required")
	}

	results := make([]FileResult, len(in.Files))

	var g errgroup.Group
	g.SetLimit(s.limits.BatchConcurrency)

	for i := range in.Files {
		file := in.Files[i]
		g.Go(func() error {
			res, err := s.Ingest(ctx, scope, Upload{
				JobID:           in.JobID,
				EvidenceType:    in.EvidenceType,
				Description:     in.Description,
				File:            &file,
				GPS:             in.GPS,
				DeviceTimestamp: in.DeviceTimestamp,
				Meta:            in.Meta,
			})

			results[i] = FileResult{Filename: file.Name}
			if err != nil {
				results[i].Error = types.PublicMessage(err)
				s.logger.WithError(err).WithField("filename", file.Name).Warn("batch file failed")
				return nil
			}

			results[i].Success = true
			results[i].EvidenceID = res.EvidenceID
			results[i].Hash = res.Hash
			results[i].Path = res.Path
			return nil
		})
	}

	_ = g.Wait()

	out := &BatchResult{Results: results}
	for _, r := range results {
		if r.Success {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}

	return out, nil

}
