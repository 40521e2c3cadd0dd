// Worker executable for turnengine
//
// This starts a Temporal worker that executes workflows and activities.
package main

import (
	"log"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/turnrelay/engine/internal/activities"
	"github.com/turnrelay/engine/internal/config"
	"github.com/turnrelay/engine/internal/execsession"
	"github.com/turnrelay/engine/internal/llm"
	"github.com/turnrelay/engine/internal/mcp"
	"github.com/turnrelay/engine/internal/tools"
	"github.com/turnrelay/engine/internal/tools/handlers"
	"github.com/turnrelay/engine/internal/workflow"
)

const (
	TaskQueue = "turnengine-temporal"
)

func main() {
	// Check for OpenAI API key
	if os.Getenv("OPENAI_API_KEY") == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}

	engineHome := config.ResolveHome()

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort: client.DefaultHostPort, // localhost:7233
	})
	if err != nil {
		log.Fatalf("Failed to create Temporal client: %v", err)
	}
	defer c.Close()

	// Create worker
	w := worker.New(c, TaskQueue, worker.Options{})

	// Register workflows
	w.RegisterWorkflow(workflow.AgenticWorkflow)
	w.RegisterWorkflow(workflow.AgenticWorkflowContinued)
	w.RegisterWorkflow(workflow.HarnessWorkflow)
	w.RegisterWorkflow(workflow.HarnessWorkflowContinued)

	// Create tool registry with handlers
	mcpStore := mcp.NewMcpStore()
	execSessions := execsession.NewRegistry()

	toolRegistry := tools.NewToolRegistry()
	toolRegistry.Register(handlers.NewShellTool())
	toolRegistry.Register(handlers.NewReadFileTool())
	toolRegistry.Register(handlers.NewApplyPatchTool())
	toolRegistry.Register(handlers.NewGrepFilesTool())
	toolRegistry.Register(handlers.NewListDirTool())
	toolRegistry.Register(handlers.NewMCPHandler(mcpStore))
	toolRegistry.Register(handlers.NewUnifiedExecTool(execSessions))
	toolRegistry.Register(handlers.NewViewImageTool(nil))

	log.Printf("Registered %d tools", toolRegistry.ToolCount())

	// Create LLM client (dispatches per-request by provider)
	llmClient := llm.NewMultiProviderClient()

	// Register activities
	llmActivities := activities.NewLLMActivities(llmClient)
	w.RegisterActivity(llmActivities.ExecuteLLMCall)
	w.RegisterActivity(llmActivities.ExecuteCompact)
	w.RegisterActivity(llmActivities.GenerateSuggestions)

	toolActivities := activities.NewToolActivities(toolRegistry)
	w.RegisterActivity(toolActivities.ExecuteTool)

	instructionActivities := activities.NewInstructionActivities()
	w.RegisterActivity(instructionActivities.LoadWorkerInstructions)
	w.RegisterActivity(instructionActivities.LoadExecPolicy)
	w.RegisterActivity(instructionActivities.LoadPersonalInstructions)

	mcpActivities := activities.NewMcpActivities(mcpStore)
	w.RegisterActivity(mcpActivities.InitializeMcpServers)

	rolloutActivities := activities.NewRolloutActivities(engineHome)
	w.RegisterActivity(rolloutActivities.OpenRollout)
	w.RegisterActivity(rolloutActivities.AppendRollout)
	w.RegisterActivity(rolloutActivities.CloseRollout)
	w.RegisterActivity(rolloutActivities.LoadRollout)

	worktreeActivities := activities.NewWorktreeActivities()
	w.RegisterActivity(worktreeActivities.SetupWorktree)

	// Start worker
	log.Printf("Starting worker on task queue: %s", TaskQueue)
	log.Printf("Temporal server: %s", client.DefaultHostPort)
	log.Printf("Engine home: %s", engineHome)

	err = w.Run(worker.InterruptCh())
	if err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}

	log.Println("Worker stopped")
}
