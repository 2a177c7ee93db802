// Command coreinfer is a minimal smoke-test harness for the inference
// core: it loads a GGUF checkpoint, runs one prefill step over a
// caller-supplied token-id sequence, then greedily decodes a fixed number
// of further tokens. Tokenization, sampling strategies and request
// scheduling are all out of scope for this module (spec.md §1) and so are
// out of scope here too — token ids and the argmax "sampler" below exist
// only to exercise engine.Step end to end.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/inferno-run/coreinfer/engine"
	"github.com/inferno-run/coreinfer/envconfig"
	"github.com/inferno-run/coreinfer/kvcache"
	"github.com/inferno-run/coreinfer/logutil"
	"github.com/inferno-run/coreinfer/ml"
	"github.com/inferno-run/coreinfer/model"

	_ "github.com/inferno-run/coreinfer/model/models"
)

func main() {
	modelPath := flag.String("model", "", "path to a GGUF checkpoint")
	tokensArg := flag.String("tokens", "", "comma-separated prompt token ids")
	numPredict := flag.Int("n", 8, "number of tokens to greedily decode")
	flag.Parse()

	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))

	if err := run(*modelPath, *tokensArg, *numPredict); err != nil {
		fmt.Fprintln(os.Stderr, "coreinfer:", err)
		os.Exit(1)
	}
}

func run(modelPath, tokensArg string, numPredict int) error {
	if modelPath == "" || tokensArg == "" {
		return fmt.Errorf("-model and -tokens are required")
	}

	prompt, err := parseTokens(tokensArg)
	if err != nil {
		return err
	}

	m, err := model.New("cpu", modelPath, ml.BackendParams{
		NumThreads:     envconfig.NumThreads(),
		FlashAttention: flashAttentionType(),
	})
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer m.Backend().Close()

	store := m.Config().Cache.(interface{ Store() *kvcache.Store }).Store()
	seq := engine.NewSequence(uuid.New(), prompt, store.NewShadowSet())

	ctx := m.Backend().NewContext()
	defer ctx.Close()

	logits, err := engine.Step(ctx, m, []*engine.Sequence{seq}, true, engine.PreCloneIn, engine.PostCloneOut)
	if err != nil {
		return fmt.Errorf("prefill: %w", err)
	}
	next := argmax(logits)
	seq.Append(next)
	fmt.Print(next)

	for i := 0; i < numPredict-1; i++ {
		logits, err := engine.Step(ctx, m, []*engine.Sequence{seq}, false, engine.PreCloneIn, engine.PostCloneOut)
		if err != nil {
			return fmt.Errorf("decode step %d: %w", i, err)
		}
		next := argmax(logits)
		seq.Append(next)
		fmt.Print(" ", next)
	}
	fmt.Println()

	return nil
}

func parseTokens(s string) ([]int32, error) {
	parts := strings.Split(s, ",")
	out := make([]int32, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q: %w", p, err)
		}
		out = append(out, int32(n))
	}
	return out, nil
}

func flashAttentionType() ml.FlashAttentionType {
	if envconfig.FlashAttention() {
		return ml.FlashAttentionEnabled
	}
	return ml.FlashAttentionDisabled
}

// argmax picks, for the last row of logits (the only row in a single-
// sequence batch), the vocabulary index with the largest value.
func argmax(logits ml.Tensor) int32 {
	vocab := logits.Dim(1)
	vals := logits.Floats()
	rows := logits.Dim(0)
	lo := (rows - 1) * vocab

	best := 0
	for i := 1; i < vocab; i++ {
		if vals[lo+i] > vals[lo+best] {
			best = i
		}
	}
	return int32(best)
}
