// Package poster runs the image2poster pipeline: it uploads the product image, generates one
// prompt and placement per group of batch items, then renders every item on the engine and
// stores the returned images.
package poster

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"math/rand/v2"
	"path"
	"strings"

	"posterd/internal/domain"
	"posterd/internal/engine"
	"posterd/internal/infra"
	"posterd/internal/providers/placement"
	"posterd/internal/providers/prompt"
	"posterd/internal/workflow"
)

// MaxSeed is the upper bound of randomly drawn noise seeds.
const MaxSeed int64 = 886185987922208

const (
	defaultBatchSize  = 1
	defaultOutputPath = "output"
	missingParamsMsg  = "Missing required input parameters, error_info: %v"
)

// Engine is the part of the engine client the processor drives.
type Engine interface {
	Upload(ctx context.Context, imagePath, subfolder string) (string, error)
	Submit(ctx context.Context, g workflow.Graph) (engine.Handle, error)
	Collect(ctx context.Context, jobID string, wanted workflow.OutputSelector) (engine.Outputs, error)
}

// PromptGenerator produces the image prompt for a group.
type PromptGenerator interface {
	Generate(ctx context.Context, systemPrompt, input string) (string, bool, error)
}

// PlacementGenerator decides where the product sits on the canvas.
type PlacementGenerator interface {
	Generate(ctx context.Context, imagePrompt string, imageURLs ...string) (placement.Placement, error)
}

// ImageStore persists encoded output images.
type ImageStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Options configures a Processor.
type Options struct {
	Engine       Engine
	Prompts      PromptGenerator
	Placement    PlacementGenerator
	Store        ImageStore
	Template     *workflow.Template
	NodeIDs      workflow.NodeIDs
	SystemPrompt string

	// GroupSize is the number of batch items sharing one prompt and placement.
	GroupSize int
	Width     int
	Height    int

	// OnAsset is called after every stored image. An error fails the task.
	OnAsset func(ctx context.Context, asset domain.Asset) error
	Seed    func() int64
	Logger  *infra.Logger
}

// Processor runs image2poster tasks one at a time. It drives a single engine session, whose
// stream cannot tell concurrent jobs apart; run one Processor per concurrent worker.
type Processor struct {
	engine       Engine
	prompts      PromptGenerator
	placement    PlacementGenerator
	store        ImageStore
	template     *workflow.Template
	nodeIDs      workflow.NodeIDs
	systemPrompt string
	groupSize    int
	width        int
	height       int
	onAsset      func(ctx context.Context, asset domain.Asset) error
	seed         func() int64
	logger       *infra.Logger
}

// NewProcessor checks that every collaborator is present.
func NewProcessor(opts Options) (*Processor, error) {
	switch {
	case opts.Engine == nil:
		return nil, errors.New("poster: engine is required")
	case opts.Prompts == nil:
		return nil, errors.New("poster: prompt generator is required")
	case opts.Placement == nil:
		return nil, errors.New("poster: placement generator is required")
	case opts.Store == nil:
		return nil, errors.New("poster: image store is required")
	case opts.Template == nil:
		return nil, errors.New("poster: workflow template is required")
	}
	p := &Processor{
		engine:       opts.Engine,
		prompts:      opts.Prompts,
		placement:    opts.Placement,
		store:        opts.Store,
		template:     opts.Template,
		nodeIDs:      opts.NodeIDs,
		systemPrompt: opts.SystemPrompt,
		groupSize:    opts.GroupSize,
		width:        opts.Width,
		height:       opts.Height,
		onAsset:      opts.OnAsset,
		seed:         opts.Seed,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}
	if p.nodeIDs == (workflow.NodeIDs{}) {
		p.nodeIDs = workflow.DefaultPosterNodeIDs
	}
	if p.groupSize < 1 {
		p.groupSize = 5
	}
	if p.width <= 0 {
		p.width = 1024
	}
	if p.height <= 0 {
		p.height = 1024
	}
	if p.seed == nil {
		p.seed = func() int64 { return rand.Int64N(MaxSeed) + 1 }
	}
	return p, nil
}

// task is a request with every default resolved.
type task struct {
	id         string
	imagePath  string
	input      string
	batchSize  int
	outputs    workflow.OutputSelector
	optimize   bool
	seed       int64
	width      int
	height     int
	outputPath string
}

func (p *Processor) resolve(taskID string, req domain.PosterRequest) (task, error) {
	var missing []string
	if strings.TrimSpace(req.ImagePath) == "" {
		missing = append(missing, "image_path")
	}
	if strings.TrimSpace(req.InputPrompt) == "" {
		missing = append(missing, "input_prompt")
	}
	if len(missing) > 0 {
		return task{}, fmt.Errorf("%w: missing %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	t := task{
		id:         taskID,
		imagePath:  req.ImagePath,
		input:      req.InputPrompt,
		batchSize:  defaultBatchSize,
		outputs:    workflow.FinalOutputs(),
		optimize:   true,
		width:      p.width,
		height:     p.height,
		outputPath: defaultOutputPath,
	}
	if req.BatchSize != nil {
		t.batchSize = *req.BatchSize
	}
	if req.ShowMiddleResult {
		t.outputs = workflow.IntermediateOutputs()
	}
	if req.PromptOptimizer != nil {
		t.optimize = *req.PromptOptimizer
	}
	if req.Seed != nil {
		t.seed = *req.Seed
	} else {
		t.seed = p.seed()
	}
	if req.Width != nil {
		t.width = *req.Width
	}
	if req.Height != nil {
		t.height = *req.Height
	}
	if t.width <= 0 || t.height <= 0 {
		return task{}, fmt.Errorf("%w: width and height must be positive", domain.ErrInvalidInput)
	}
	if out := strings.TrimSpace(req.OutputPath); out != "" {
		t.outputPath = out
	}
	return t, nil
}

// Process runs one task to completion. Failures are reported through the returned Result;
// images stored before a failure are kept.
func (p *Processor) Process(ctx context.Context, taskID string, req domain.PosterRequest) domain.Result {
	log := p.logger.With().Str("task_id", taskID).Str("task_type", string(domain.TaskTypeImage2Poster)).Logger()

	t, err := p.resolve(taskID, req)
	if err != nil {
		log.Error().Err(err).Msg("poster: invalid request")
		return domain.Fail(fmt.Sprintf(missingParamsMsg, err))
	}

	inputImage, err := p.engine.Upload(ctx, t.imagePath, string(domain.TaskTypeImage2Poster))
	if err != nil {
		log.Error().Err(err).Msg("poster: upload image failed")
		return domain.Fail(domain.MessageProcessFailed)
	}
	log.Info().Str("input_image", inputImage).Msg("poster: image uploaded")

	results := make([]map[string]string, 0, max(t.batchSize, 0))
	for _, group := range Group(t.batchSize, p.groupSize) {
		imagePrompt, failure := p.imagePrompt(ctx, &log, t)
		if failure != "" {
			return domain.Fail(failure)
		}
		spot, err := p.placement.Generate(ctx, imagePrompt)
		if err != nil {
			log.Error().Err(err).Msg("poster: placement failed")
			return domain.Fail(domain.MessageProcessFailed)
		}

		params := workflow.Params{
			InputImage: inputImage,
			Prompt:     imagePrompt,
			Seed:       t.seed,
			XPercent:   spot.XPercent,
			YPercent:   spot.YPercent,
			Scale:      spot.Scale,
			Width:      t.width,
			Height:     t.height,
		}
		for _, index := range group {
			saved, err := p.render(ctx, &log, t, index, params)
			if err != nil {
				log.Error().Err(err).Int("index", index).Msg("poster: render failed")
				return domain.Fail(domain.MessageProcessFailed)
			}
			results = append(results, saved)
		}
	}
	log.Info().Int("items", len(results)).Msg("poster: task done")
	return domain.Result{Status: true, Message: domain.MessageSuccess, Data: results}
}

// imagePrompt returns the prompt for one group, or the failure message to report.
func (p *Processor) imagePrompt(ctx context.Context, log *infra.Logger, t task) (string, string) {
	if !t.optimize {
		return t.input, ""
	}
	text, policy, err := p.prompts.Generate(ctx, p.systemPrompt, t.input)
	switch {
	case policy:
		log.Error().Str("input_prompt", t.input).Msg("poster: content policy violation")
		return "", text
	case errors.Is(err, prompt.ErrAttemptsExhausted), errors.Is(err, prompt.ErrValidation):
		log.Error().Err(err).Msg("poster: no usable image prompt")
		return "", domain.MessageNoPrompt
	case err != nil:
		log.Error().Err(err).Msg("poster: prompt generation failed")
		return "", domain.MessageProcessFailed
	case strings.TrimSpace(text) == "":
		return "", domain.MessageNoPrompt
	}
	log.Info().Str("image_prompt", text).Msg("poster: image prompt ready")
	return text, ""
}

// render submits one batch item and stores every selected output it produced.
func (p *Processor) render(ctx context.Context, log *infra.Logger, t task, index int, params workflow.Params) (map[string]string, error) {
	graph := p.template.Clone()
	if err := workflow.Inject(graph, p.nodeIDs, params); err != nil {
		return nil, err
	}
	handle, err := p.engine.Submit(ctx, graph)
	if err != nil {
		return nil, err
	}
	if !handle.OK() {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskFailed, handle.Message)
	}
	log.Info().Str("job_id", handle.JobID).Int("index", index).Msg("poster: job submitted")

	outputs, err := p.engine.Collect(ctx, handle.JobID, t.outputs)
	if err != nil {
		return nil, err
	}
	saved := make(map[string]string, len(outputs))
	for _, nodeID := range t.outputs.NodeIDs() {
		data := outputs.First(nodeID)
		if data == nil {
			continue
		}
		name := t.outputs[nodeID]
		asset, err := p.save(ctx, t, name, index, data)
		if err != nil {
			return nil, fmt.Errorf("save %s: %w", name, err)
		}
		saved[name] = asset.StorageKey
	}
	return saved, nil
}

func (p *Processor) save(ctx context.Context, t task, resultName string, index int, data []byte) (domain.Asset, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.Asset{}, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.Asset{}, fmt.Errorf("encode png: %w", err)
	}
	key, err := p.store.Write(ctx, ImageKey(t.outputPath, t.id, resultName, index), buf.Bytes())
	if err != nil {
		return domain.Asset{}, err
	}
	bounds := img.Bounds()
	sum := sha256.Sum256(buf.Bytes())
	asset := domain.Asset{
		TaskID:     t.id,
		ResultName: resultName,
		Index:      index + 1,
		StorageKey: key,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Bytes:      int64(buf.Len()),
		Checksum:   hex.EncodeToString(sum[:]),
	}
	if p.onAsset != nil {
		if err := p.onAsset(ctx, asset); err != nil {
			return domain.Asset{}, fmt.Errorf("record asset: %w", err)
		}
	}
	return asset, nil
}

// ImageKey is the storage key of one output image: <dir>/<task>-<result name>_<index+1>.png.
func ImageKey(dir, taskID, resultName string, index int) string {
	return path.Join(dir, fmt.Sprintf("%s-%s_%d.png", taskID, resultName, index+1))
}
