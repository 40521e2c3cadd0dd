package workflow

import (
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turnrelay/engine/internal/activities"
	"github.com/turnrelay/engine/internal/models"
)

// TestViewImage_AttachmentEntersNextPrompt verifies the view_image flow:
// the tool's data URL is queued and enters history as an input image when
// the next prompt is built.
func (s *AgenticWorkflowTestSuite) TestViewImage_AttachmentEntersNextPrompt() {
	const dataURL = "data:image/png;base64,AAAA"

	// First LLM call requests view_image.
	s.env.OnActivity("ExecuteLLMCall", mock.Anything, mock.Anything).
		Return(activities.LLMActivityOutput{
			Items: []models.ConversationItem{{
				Type:      models.ItemTypeFunctionCall,
				CallID:    "call-img",
				Name:      "view_image",
				Arguments: `{"path": "pixel.png"}`,
			}},
			FinishReason: models.FinishReasonToolCalls,
			TokenUsage:   models.TokenUsage{TotalTokens: 10},
		}, nil).Once()

	// The tool returns the attachment.
	success := true
	s.env.OnActivity("ExecuteTool", mock.Anything, mock.Anything).
		Return(activities.ToolActivityOutput{
			CallID:    "call-img",
			Content:   "attached local image path",
			Success:   &success,
			ImageURL:  dataURL,
			ImagePath: "/work/pixel.png",
		}, nil).Once()

	// The second LLM call's prompt must carry the input image.
	var sawImage bool
	s.env.OnActivity("ExecuteLLMCall", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			input := args.Get(1).(activities.LLMActivityInput)
			for _, item := range input.History {
				if item.Type == models.ItemTypeInputImage && item.ImageURL == dataURL {
					sawImage = true
				}
			}
		}).
		Return(mockLLMStopResponse("done", 20), nil).Once()

	s.sendShutdown(3 * time.Second)
	s.env.ExecuteWorkflow(AgenticWorkflow, testInput("look at the image"))

	require.True(s.T(), s.env.IsWorkflowCompleted())
	assert.True(s.T(), sawImage, "input image should ride in the next prompt")
}

// TestViewImage_FailedAttachmentStaysOut verifies S5: a failed view_image
// puts nothing into the next prompt.
func (s *AgenticWorkflowTestSuite) TestViewImage_FailedAttachmentStaysOut() {
	s.env.OnActivity("ExecuteLLMCall", mock.Anything, mock.Anything).
		Return(activities.LLMActivityOutput{
			Items: []models.ConversationItem{{
				Type:      models.ItemTypeFunctionCall,
				CallID:    "call-img",
				Name:      "view_image",
				Arguments: `{"path": "missing/x.png"}`,
			}},
			FinishReason: models.FinishReasonToolCalls,
			TokenUsage:   models.TokenUsage{TotalTokens: 10},
		}, nil).Once()

	failure := false
	s.env.OnActivity("ExecuteTool", mock.Anything, mock.Anything).
		Return(activities.ToolActivityOutput{
			CallID:  "call-img",
			Content: "unable to locate image at `/work/missing/x.png`: no such file",
			Success: &failure,
		}, nil).Once()

	var sawImage bool
	s.env.OnActivity("ExecuteLLMCall", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			input := args.Get(1).(activities.LLMActivityInput)
			for _, item := range input.History {
				if item.Type == models.ItemTypeInputImage {
					sawImage = true
				}
			}
		}).
		Return(mockLLMStopResponse("could not see it", 20), nil).Once()

	s.sendShutdown(3 * time.Second)
	s.env.ExecuteWorkflow(AgenticWorkflow, testInput("look at the image"))

	require.True(s.T(), s.env.IsWorkflowCompleted())
	assert.False(s.T(), sawImage, "no input image may enter the prompt after a failed view_image")
}
