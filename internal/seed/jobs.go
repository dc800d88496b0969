// Package seed fills a development database with demo jobs and evidence.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"time"

	"tradeproof/internal/evidence"
	"tradeproof/internal/geo"
	"tradeproof/internal/utils"
	"tradeproof/pkg/types"
)

type JobCreator interface {
	CreateJob(ctx context.Context, scope types.Scope, job *types.Job) error
}

type Ingester interface {
	Ingest(ctx context.Context, scope types.Scope, in evidence.Upload) (*evidence.Result, error)
}

var fakeClients = []string{
	"Ava Williams",
	"Liam Johnson",
	"Noah Brown",
	"Mia Davis",
	"Elijah Garcia",
	"Olivia Miller",
	"Ethan Moore",
	"Sophia Taylor",
}

var fakeDescriptions = map[types.EvidenceType][]string{
	types.EvidenceBefore: {
		"Existing units before strip-out, water damage visible under sink.",
		"Original wiring at consumer unit prior to any work.",
		"Roof valley before repair, slipped tiles on north side.",
	},
	types.EvidenceProgress: {
		"First fix complete, pipework pressure tested.",
		"Plasterboard up, awaiting skim.",
		"Battens and membrane fitted before tiling.",
	},
	types.EvidenceAfter: {
		"Finished installation, all fittings tested and working.",
		"Completed work after final clean.",
	},
	types.EvidenceDefect: {
		"Pre-existing crack in wall noted to client before work started.",
	},
	types.EvidenceApproval: {
		"Client walked the finished job and signed off.",
	},
	types.EvidenceContract: {
		"Signed quote and terms of work.",
	},
	types.EvidenceReceipt: {
		"Materials invoice from merchant.",
	},
}

type weightedStage struct {
	Types  []types.EvidenceType
	Weight int
}

// Jobs at different points of completion, so protection scores spread out.
var weightedStages = []weightedStage{
	{Types: []types.EvidenceType{types.EvidenceBefore}, Weight: 25},
	{Types: []types.EvidenceType{types.EvidenceContract, types.EvidenceBefore, types.EvidenceProgress}, Weight: 35},
	{Types: []types.EvidenceType{types.EvidenceContract, types.EvidenceBefore, types.EvidenceDefect, types.EvidenceProgress, types.EvidenceAfter}, Weight: 25},
	{Types: types.EvidenceTypes, Weight: 15},
}

var jobTypes = []types.JobType{
	types.JobTypeKitchen,
	types.JobTypeBathroom,
	types.JobTypeElectrical,
	types.JobTypePlumbing,
	types.JobTypeRoofing,
	types.JobTypeExtension,
}

// SeedDemoJobs creates count jobs for the scope and runs their evidence
// through the normal ingest pipeline, photos included.
func SeedDemoJobs(ctx context.Context, jobs JobCreator, ingest Ingester, scope types.Scope, count int, rng *rand.Rand) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		jobType := jobTypes[rng.Intn(len(jobTypes))]
		start := time.Now().AddDate(0, 0, -rng.Intn(60)-7)

		job := &types.Job{
			ClientName:    fakeClients[rng.Intn(len(fakeClients))],
			ClientPhone:   utils.StringPtr(fmt.Sprintf("07700 900%03d", rng.Intn(1000))),
			ClientAddress: utils.StringPtr(fmt.Sprintf("%d Station Road, Leeds", rng.Intn(200)+1)),
			JobType:       jobType,
			Description:   utils.StringPtr(fmt.Sprintf("[seed] %s job", jobType.Label())),
			ContractValue: utils.Float64Ptr(float64(rng.Intn(180)+20) * 100),
			StartDate:     utils.TimePtr(start),
		}

		if err := jobs.CreateJob(ctx, scope, job); err != nil {
			return ids, fmt.Errorf("failed to create demo job %d: %w", i+1, err)
		}

		// One site per job, jittered by a few metres per photo.
		site := geo.Reading{Latitude: 53.79 + rng.Float64()*0.05, Longitude: -1.55 + rng.Float64()*0.05}

		stage := pickWeightedStage(rng)
		for n, evidenceType := range stage.Types {
			in := evidence.Upload{
				JobID:        job.ID,
				EvidenceType: evidenceType,
				Description:  pickDescription(evidenceType, rng),
				GPS: &geo.Reading{
					Latitude:  site.Latitude + (rng.Float64()-0.5)*0.0002,
					Longitude: site.Longitude + (rng.Float64()-0.5)*0.0002,
					Accuracy:  utils.Float64Ptr(float64(rng.Intn(15) + 3)),
				},
				DeviceTimestamp: utils.TimePtr(start.Add(time.Duration(n) * 24 * time.Hour)),
			}

			if evidenceType == types.EvidenceApproval {
				in.ClientApproval = utils.BoolPtr(true)
				in.ClientSignature = utils.StringPtr(job.ClientName)
			}

			if evidenceType != types.EvidenceContract {
				photo, err := demoPhoto(rng)
				if err != nil {
					return ids, err
				}
				in.File = &evidence.File{
					Name:        fmt.Sprintf("%s-%d.jpg", evidenceType, n+1),
					ContentType: "image/jpeg",
					Data:        photo,
				}
			}

			if _, err := ingest.Ingest(ctx, scope, in); err != nil {
				return ids, fmt.Errorf("failed to ingest %s evidence for demo job %s: %w", evidenceType, job.ID, err)
			}
		}

		ids = append(ids, job.ID)
	}

	return ids, nil
}

func pickWeightedStage(rng *rand.Rand) weightedStage {
	total := 0
	for _, item := range weightedStages {
		total += item.Weight
	}

	roll := rng.Intn(total)
	running := 0
	for _, item := range weightedStages {
		running += item.Weight
		if roll < running {
			return item
		}
	}

	return weightedStages[0]
}

func pickDescription(t types.EvidenceType, rng *rand.Rand) string {
	options := fakeDescriptions[t]
	if len(options) == 0 {
		return t.Label()
	}
	return options[rng.Intn(len(options))]
}

// demoPhoto renders a small gradient so every seeded photo hashes
// differently.
func demoPhoto(rng *rand.Rand) ([]byte, error) {
	const w, h = 160, 120

	base := color.RGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: base.R + uint8(x), G: base.G + uint8(y), B: base.B, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encode demo photo: %w", err)
	}
	return buf.Bytes(), nil
}
