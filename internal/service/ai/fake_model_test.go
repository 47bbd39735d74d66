package ai

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type fakeChatModel struct {
	mu       sync.Mutex
	chunks   []string
	reply    string
	err      error
	lastIn   []*schema.Message
	lastOpts *model.Options
}

func (f *fakeChatModel) record(input []*schema.Message, opts []model.Option) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastIn = input
	f.lastOpts = model.GetCommonOptions(&model.Options{}, opts...)
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.record(input, opts)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.record(input, opts)
	if f.err != nil {
		return nil, f.err
	}
	msgs := make([]*schema.Message, 0, len(f.chunks))
	for _, c := range f.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (f *fakeChatModel) BindTools([]*schema.ToolInfo) error { return nil }

type fakeRetriever struct {
	passages []string
	err      error
	query    string
	k        int
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, k int) ([]string, error) {
	f.query = query
	f.k = k
	return f.passages, f.err
}
