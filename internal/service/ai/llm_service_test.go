package ai

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/hirestream/backend/internal/model/chat"
)

func TestBuildInputPutsInstructionFirst(t *testing.T) {
	svc, err := NewService(context.Background(), &fakeChatModel{})
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}

	input, err := svc.BuildInput(context.Background(), JobDescription, chat.Payload{Prompt: "Write a backend engineer job post"})
	if err != nil {
		t.Fatalf("BuildInput err: %v", err)
	}

	if input["system"] != JobDescription.Instruction {
		t.Fatalf("unexpected system prompt: %v", input["system"])
	}
	turns := input["turns"].([]*schema.Message)
	if len(turns) != 1 || turns[0].Role != schema.User || turns[0].Content != "Write a backend engineer job post" {
		t.Fatalf("unexpected turns: %+v", turns)
	}
}

func TestBuildInputKeepsMultiTurnOrder(t *testing.T) {
	svc, _ := NewService(context.Background(), &fakeChatModel{})

	payload := chat.Payload{Messages: []chat.Message{
		{Role: chat.RoleUser, Content: "I study CS"},
		{Role: chat.RoleAssistant, Content: "What is your dream job?"},
		{Role: chat.RoleUser, Content: "Backend engineer"},
		{Role: chat.RoleUser, Content: "  "},
	}}
	input, err := svc.BuildInput(context.Background(), ActionPlan, payload)
	if err != nil {
		t.Fatalf("BuildInput err: %v", err)
	}

	turns := input["turns"].([]*schema.Message)
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[1].Role != schema.Assistant || turns[2].Content != "Backend engineer" {
		t.Fatalf("unexpected turn order: %+v", turns)
	}
}

func TestBuildInputInjectsRetrievedPassages(t *testing.T) {
	retriever := &fakeRetriever{passages: []string{"Alice, Go developer, 5 years"}}
	svc, _ := NewService(context.Background(), &fakeChatModel{}, WithRetriever(retriever))

	input, err := svc.BuildInput(context.Background(), CandidateSearch, chat.Payload{Prompt: "Senior Go engineer"})
	if err != nil {
		t.Fatalf("BuildInput err: %v", err)
	}

	system := input["system"].(string)
	if !strings.HasPrefix(system, CandidateSearch.Instruction) || !strings.Contains(system, "Alice, Go developer") {
		t.Fatalf("passages not injected: %q", system)
	}
	if retriever.query != "Senior Go engineer" || retriever.k != CandidateSearch.TopK {
		t.Fatalf("unexpected retrieval call: %q k=%d", retriever.query, retriever.k)
	}
	turns := input["turns"].([]*schema.Message)
	if turns[0].Content != "Show suitable candidates for this job: Senior Go engineer" {
		t.Fatalf("query not framed: %q", turns[0].Content)
	}
}

func TestBuildInputErrors(t *testing.T) {
	svc, _ := NewService(context.Background(), &fakeChatModel{})

	if _, err := svc.BuildInput(context.Background(), JobDescription, chat.Payload{}); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
	if _, err := svc.BuildInput(context.Background(), CandidateSearch, chat.Payload{Prompt: "x"}); !errors.Is(err, ErrRetrieverMissing) {
		t.Fatalf("expected ErrRetrieverMissing, got %v", err)
	}

	failing, _ := NewService(context.Background(), &fakeChatModel{}, WithRetriever(&fakeRetriever{err: errors.New("index down")}))
	if _, err := failing.BuildInput(context.Background(), CandidateSearch, chat.Payload{Prompt: "x"}); err == nil {
		t.Fatal("expected retrieval error")
	}
}

func TestStreamRelaysChunksInOrder(t *testing.T) {
	fake := &fakeChatModel{chunks: []string{"Description:", "\n- build APIs", "\nRequirements:"}}
	svc, _ := NewService(context.Background(), fake)

	stream, err := svc.Stream(context.Background(), JobDescription, chat.Payload{Prompt: "Write a backend engineer job post"})
	if err != nil {
		t.Fatalf("Stream err: %v", err)
	}
	defer stream.Close()

	var got []string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv err: %v", err)
		}
		got = append(got, chunk.Content)
	}

	if strings.Join(got, "") != "Description:\n- build APIs\nRequirements:" {
		t.Fatalf("unexpected stream content: %q", got)
	}
	if len(fake.lastIn) != 2 || fake.lastIn[0].Role != schema.System {
		t.Fatalf("expected system + user input, got %+v", fake.lastIn)
	}
	if fake.lastOpts.MaxTokens == nil || *fake.lastOpts.MaxTokens != 1024 {
		t.Fatalf("expected max tokens option to be passed")
	}
}

func TestGenerateRejectsEmptyResponse(t *testing.T) {
	svc, _ := NewService(context.Background(), &fakeChatModel{reply: "   "})

	if _, err := svc.Generate(context.Background(), ActionPlan, chat.Payload{Prompt: "plan"}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestGenerateReturnsReply(t *testing.T) {
	fake := &fakeChatModel{reply: "1. Learn Go"}
	svc, _ := NewService(context.Background(), fake)

	msg, err := svc.Generate(context.Background(), ActionPlan, chat.Payload{Prompt: "plan"})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if msg.Content != "1. Learn Go" {
		t.Fatalf("unexpected reply: %q", msg.Content)
	}
	if fake.lastOpts.Temperature == nil || *fake.lastOpts.Temperature != 0 {
		t.Fatalf("expected fixed temperature 0")
	}
}

func TestLookupProfile(t *testing.T) {
	if _, ok := LookupProfile("candidate-search"); !ok {
		t.Fatal("expected candidate-search profile")
	}
	if _, ok := LookupProfile("unknown"); ok {
		t.Fatal("unexpected profile")
	}
}
