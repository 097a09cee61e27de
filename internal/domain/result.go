package domain

// Messages surfaced in Result.Message.
const (
	MessageSuccess       = "success"
	MessageNoPrompt      = "flux_prompt is None"
	MessageProcessFailed = "process run failed. "
)

// Result is the outcome of processing a task. Data is nil whenever Status is false. Each Data
// entry maps a result name such as "final_image_url" to the storage key of the saved image.
type Result struct {
	Status  bool                `json:"status"`
	Message string              `json:"message"`
	Data    []map[string]string `json:"data"`
}

// Fail builds a failed Result.
func Fail(message string) Result {
	return Result{Status: false, Message: message}
}

// PosterRequest carries the parameters of an image2poster task. Optional fields are pointers so
// the processor can tell an absent value from a zero one.
type PosterRequest struct {
	ImagePath        string `json:"image_path"`
	InputPrompt      string `json:"input_prompt"`
	BatchSize        *int   `json:"batchsize,omitempty"`
	ShowMiddleResult bool   `json:"show_middle_result,omitempty"`
	PromptOptimizer  *bool  `json:"prompt_optimizer,omitempty"`
	Seed             *int64 `json:"seed,omitempty"`
	Width            *int   `json:"width,omitempty"`
	Height           *int   `json:"height,omitempty"`
	OutputPath       string `json:"output_path,omitempty"`
}
