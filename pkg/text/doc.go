// Package text exposes a high-level, public API for querying the models
// routed by chatmux using chat-style conversations.
//
// Typical usage is to construct a FullResponse querier and issue a chat
// style request:
//
//	ctx := context.Background()
//	q := text.NewFullResponseQuerier(text.WithModel("claude-sonnet-4-0"))
//
//	chat := models.Chat{ /* populate chat with messages */ }
//	reply, err := q.Query(ctx, chat)
//	if err != nil {
//	    // handle error
//	}
//	_ = reply
//
// The reply holds the input messages followed by the assistant answer. If
// the model used tools, the assistant messages requesting them and the
// tool results are included in order. Custom tools are offered with
// WithLLMTools.
package text
