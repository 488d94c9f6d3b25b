package asyncjob

import (
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/relaybridge/bedrock-gateway/internal/obslog"
)

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}

// CleanupQueue runs deferred teardown of async-job artifacts after a
// response has been flushed, per spec.md §4.6 step 6: deleting every S3
// object under the job's output prefix, independently of the request that
// produced them. The provider job record itself is left in place.
// Grounded on the teacher's fire-and-forget goroutine idiom for
// non-blocking bookkeeping (e.g. usage logging after a response is sent).
type CleanupQueue struct {
	S3      *s3.Client
	Bedrock *bedrockruntime.Client
}

// Enqueue schedules cleanup for one completed or failed Job. It returns
// immediately; cleanup runs in its own goroutine with its own background
// context so client disconnects never interrupt it.
func (q CleanupQueue) Enqueue(requestID string, job *Job) {
	if job == nil {
		return
	}
	go q.run(requestID, job)
}

func (q CleanupQueue) run(requestID string, job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	var lastErr error

	for _, obj := range job.TrackedObjects {
		if err := q.deletePrefix(ctx, obj.Bucket, obj.Key); err != nil {
			lastErr = err
		}
	}

	if job.TrackedProviderJob != "" {
		// Bedrock does not expose a delete-async-invoke API; the job record
		// expires on its own per-account retention policy, so there is
		// nothing further to tear down here beyond its S3 output.
		_ = job.TrackedProviderJob
	}

	lvl := obslog.LevelInfo
	if lastErr != nil {
		lvl = obslog.LevelError
	}
	detail := map[string]any{"duration": time.Since(start).String()}
	if lastErr != nil {
		detail["error"] = lastErr.Error()
	}
	obslog.Background(lvl, "asyncjob_cleanup", requestID, detail)
}

func (q CleanupQueue) deletePrefix(ctx context.Context, bucket, prefix string) error {
	var continuationToken *string
	for {
		list, err := q.S3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return err
		}
		for _, obj := range list.Contents {
			if _, err := q.S3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: obj.Key}); err != nil {
				return err
			}
		}
		if list.IsTruncated == nil || !*list.IsTruncated {
			return nil
		}
		continuationToken = list.NextContinuationToken
	}
}

