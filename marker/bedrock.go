package marker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockRuntimeAPI is the subset of the Bedrock runtime client used by BedrockInvoker
type BedrockRuntimeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// BedrockInvoker implements ModelInvoker on top of Amazon Bedrock
type BedrockInvoker struct {
	client BedrockRuntimeAPI
}

// NewBedrockInvoker wraps a Bedrock runtime client
func NewBedrockInvoker(client BedrockRuntimeAPI) *BedrockInvoker {
	return &BedrockInvoker{client: client}
}

// NewBedrockClient loads the default AWS credential chain for region and
// builds a runtime client whose HTTP requests time out after timeout.
func NewBedrockClient(ctx context.Context, region string, timeout time.Duration) (*bedrockruntime.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for region %s: %w", region, err)
	}

	return bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if timeout > 0 {
			o.HTTPClient = awshttp.NewBuildableClient().WithTimeout(timeout)
		}
	}), nil
}

// InvokeModel sends body to modelID and returns the raw response body
func (b *BedrockInvoker) InvokeModel(ctx context.Context, modelID string, body []byte) ([]byte, error) {
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// InvokeModelStream starts a response stream for body
func (b *BedrockInvoker) InvokeModelStream(ctx context.Context, modelID string, body []byte) (ChunkReader, error) {
	out, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, err
	}
	return newEventChunkReader(out.GetStream()), nil
}

// eventStream is satisfied by *bedrockruntime.ResponseStreamEventStream
type eventStream interface {
	Events() <-chan types.ResponseStream
	Close() error
	Err() error
}

type eventChunkReader struct {
	stream    eventStream
	chunks    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newEventChunkReader(stream eventStream) *eventChunkReader {
	r := &eventChunkReader{
		stream: stream,
		chunks: make(chan []byte),
		done:   make(chan struct{}),
	}
	go r.pump()
	return r
}

func (r *eventChunkReader) pump() {
	defer close(r.chunks)
	for event := range r.stream.Events() {
		chunk, ok := event.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		select {
		case r.chunks <- chunk.Value.Bytes:
		case <-r.done:
			return
		}
	}
}

func (r *eventChunkReader) Chunks() <-chan []byte {
	return r.chunks
}

func (r *eventChunkReader) Err() error {
	return r.stream.Err()
}

func (r *eventChunkReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		err = r.stream.Close()
	})
	return err
}
