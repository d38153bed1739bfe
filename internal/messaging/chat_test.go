package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/RagePipe/internal/command"
	"github.com/BTreeMap/RagePipe/internal/inject"
	"github.com/BTreeMap/RagePipe/internal/models"
	"github.com/BTreeMap/RagePipe/internal/rage"
	"github.com/BTreeMap/RagePipe/internal/trigger"
)

const testSender = "15551234567"

type fakeJudge struct {
	decisions []trigger.Decision
	err       error
	calls     int
}

func (f *fakeJudge) Evaluate(ctx context.Context, message string) ([]trigger.Decision, error) {
	f.calls++
	return f.decisions, f.err
}

type fakeLLM struct {
	reply    string
	err      error
	messages [][]openai.ChatCompletionMessageParamUnion
}

func (f *fakeLLM) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	f.messages = append(f.messages, messages)
	return f.reply, f.err
}

func (f *fakeLLM) systemPrompt(call int) string {
	return f.messages[call][0].OfSystem.Content.OfString.Value
}

func newPipeline(t *testing.T, judge *fakeJudge, llm *fakeLLM) (*ResponseHandler, *mockService, *rage.Engine) {
	t.Helper()
	engine, err := rage.NewEngine(rage.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	svc := newMockService()
	rh := NewResponseHandler(svc, nil)
	history := NewHistory(DefaultHistoryLength)
	rh.AddHook("command", CreateCommandHook(command.NewHandler(engine), svc, history))
	rh.AddHook("chat", CreateChatHook(ChatDeps{
		Judge:      judge,
		Dispatcher: trigger.NewDispatcher(engine),
		Injector:   inject.New(engine),
		LLM:        llm,
		Persona:    "You are a cat.",
		History:    history,
	}, svc))
	return rh, svc, engine
}

func TestChat_CommandNeverReachesLLM(t *testing.T) {
	judge := &fakeJudge{}
	llm := &fakeLLM{reply: "meow"}
	rh, svc, engine := newPipeline(t, judge, llm)

	if err := rh.ProcessResponse(context.Background(), models.Response{From: "+" + testSender, Body: "/rage set 42"}); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}
	if judge.calls != 0 || len(llm.messages) != 0 {
		t.Errorf("command reached the model: judge=%d llm=%d", judge.calls, len(llm.messages))
	}
	st, _ := engine.Get(testSender)
	if st.Value != 42 {
		t.Errorf("expected rage 42, got %v", st.Value)
	}
	sent := svc.messages()
	if len(sent) != 1 || !strings.HasPrefix(sent[0].body, "🔥 Rage: 42.0") {
		t.Errorf("unexpected command reply %+v", sent)
	}
}

func TestChat_JudgedAndRepliedWithMood(t *testing.T) {
	judge := &fakeJudge{decisions: []trigger.Decision{{Category: trigger.CategoryProvocation, Intensity: trigger.IntensitySevere}}}
	llm := &fakeLLM{reply: "hmph."}
	rh, svc, engine := newPipeline(t, judge, llm)

	if err := rh.ProcessResponse(context.Background(), models.Response{From: "+" + testSender, Body: "you are useless"}); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}
	st, _ := engine.Get(testSender)
	if st.Value != 35 || st.Level != rage.LevelAnnoyed {
		t.Errorf("expected rage 35 at level 1, got %+v", st)
	}
	system := llm.systemPrompt(0)
	if !strings.Contains(system, "[Current mood - rage level 1, rage 35/100]") || !strings.HasSuffix(system, "You are a cat.") {
		t.Errorf("system prompt missing mood annotation: %q", system)
	}
	sent := svc.messages()
	if len(sent) != 1 || sent[0].body != "hmph." || sent[0].to != testSender {
		t.Errorf("unexpected reply %+v", sent)
	}
}

func TestChat_CalmPromptUnchanged(t *testing.T) {
	llm := &fakeLLM{reply: "purr"}
	rh, _, _ := newPipeline(t, &fakeJudge{}, llm)
	if err := rh.ProcessResponse(context.Background(), models.Response{From: testSender, Body: "nice cat"}); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}
	if got := llm.systemPrompt(0); got != "You are a cat." {
		t.Errorf("expected persona unchanged at level 0, got %q", got)
	}
}

func TestChat_JudgeErrorStillReplies(t *testing.T) {
	llm := &fakeLLM{reply: "ok"}
	rh, svc, _ := newPipeline(t, &fakeJudge{err: errors.New("timeout")}, llm)
	if err := rh.ProcessResponse(context.Background(), models.Response{From: testSender, Body: "hello"}); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}
	if len(svc.messages()) != 1 {
		t.Error("expected a reply even when the judge fails")
	}
}

func TestChat_HistoryReplayed(t *testing.T) {
	llm := &fakeLLM{reply: "first"}
	rh, _, _ := newPipeline(t, &fakeJudge{}, llm)
	ctx := context.Background()
	rh.ProcessResponse(ctx, models.Response{From: testSender, Body: "one"})
	llm.reply = "second"
	rh.ProcessResponse(ctx, models.Response{From: testSender, Body: "two"})

	second := llm.messages[1]
	if len(second) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d messages", len(second))
	}
	if second[1].OfUser == nil || second[2].OfAssistant == nil || second[3].OfUser == nil {
		t.Errorf("unexpected message roles in replay")
	}
}

func TestChat_ResetClearsHistory(t *testing.T) {
	llm := &fakeLLM{reply: "grr"}
	rh, svc, _ := newPipeline(t, &fakeJudge{}, llm)
	ctx := context.Background()
	rh.ProcessResponse(ctx, models.Response{From: testSender, Body: "one"})
	rh.ProcessResponse(ctx, models.Response{From: testSender, Body: "/rage reset"})
	rh.ProcessResponse(ctx, models.Response{From: testSender, Body: "two"})

	if len(llm.messages) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(llm.messages))
	}
	if got := len(llm.messages[1]); got != 2 {
		t.Errorf("expected system + user after reset, got %d messages", got)
	}
	sent := svc.messages()
	if len(sent) != 3 || sent[1].body != command.MsgReset {
		t.Errorf("unexpected replies %+v", sent)
	}
}

func TestChat_ShowKeepsHistory(t *testing.T) {
	llm := &fakeLLM{reply: "grr"}
	rh, _, _ := newPipeline(t, &fakeJudge{}, llm)
	ctx := context.Background()
	rh.ProcessResponse(ctx, models.Response{From: testSender, Body: "one"})
	rh.ProcessResponse(ctx, models.Response{From: testSender, Body: "/rage show"})
	rh.ProcessResponse(ctx, models.Response{From: testSender, Body: "two"})

	if got := len(llm.messages[1]); got != 4 {
		t.Errorf("expected history kept after show, got %d messages", got)
	}
}

func TestChat_LLMErrorSendsApology(t *testing.T) {
	llm := &fakeLLM{err: errors.New("quota")}
	rh, svc, _ := newPipeline(t, &fakeJudge{}, llm)
	if err := rh.ProcessResponse(context.Background(), models.Response{From: testSender, Body: "hello"}); err == nil {
		t.Fatal("expected error from failing model")
	}
	sent := svc.messages()
	if len(sent) != 1 || sent[0].body != DefaultErrorMessage {
		t.Errorf("expected apology, got %+v", sent)
	}
}

func TestHistory_Bounded(t *testing.T) {
	h := NewHistory(2)
	h.Append("a", RoleUser, "1")
	h.Append("a", RoleAssistant, "2")
	h.Append("a", RoleUser, "3")
	turns := h.Turns("a")
	if len(turns) != 2 || turns[0].Content != "2" || turns[1].Content != "3" {
		t.Errorf("unexpected turns %+v", turns)
	}
	h.Clear("a")
	if len(h.Turns("a")) != 0 {
		t.Error("expected history cleared")
	}
}
