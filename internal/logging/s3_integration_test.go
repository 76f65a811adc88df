package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"aigate/internal/queue"
	"aigate/internal/utils"
)

// Integration tests for the S3 archive writer using Minio
//
// To run these tests, start a Minio container:
//
//   docker run -d --name minio-test \
//     -p 9000:9000 -p 9001:9001 \
//     -e MINIO_ROOT_USER=minioadmin \
//     -e MINIO_ROOT_PASSWORD=minioadmin \
//     minio/minio server /data --console-address ":9001"
//
// Then run tests:
//   MINIO_ENDPOINT=http://localhost:9000 go test -v -run TestS3Integration

const (
	defaultMinioEndpoint  = "http://localhost:9000"
	defaultMinioAccessKey = "minioadmin"
	defaultMinioSecretKey = "minioadmin"
	testBucketName        = "test-usage-archive"
)

// getMinioEndpoint returns the Minio endpoint from environment or default
func getMinioEndpoint() string {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = defaultMinioEndpoint
	}
	return endpoint
}

// getMinioCredentials returns access key and secret key from environment or defaults
func getMinioCredentials() (string, string) {
	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	if accessKey == "" {
		accessKey = defaultMinioAccessKey
	}
	secretKey := os.Getenv("MINIO_SECRET_KEY")
	if secretKey == "" {
		secretKey = defaultMinioSecretKey
	}
	return accessKey, secretKey
}

// isMinioAvailable checks if Minio is available for testing
func isMinioAvailable(t *testing.T) bool {
	client, err := createMinioClient()
	if err != nil {
		t.Skipf("Failed to create Minio client: %v", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		t.Skipf("Minio not available for testing: %v", err)
		return false
	}
	return true
}

// createMinioClient creates an S3 client configured for Minio
func createMinioClient() (*s3.Client, error) {
	endpoint := getMinioEndpoint()
	accessKey, secretKey := getMinioCredentials()

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true // Required for Minio
	})

	return client, nil
}

// setupTestBucket creates a test bucket if it doesn't exist
func setupTestBucket(t *testing.T, client *s3.Client) {
	ctx := context.Background()

	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(testBucketName),
	})
	if err == nil {
		return // Bucket already exists
	}

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(testBucketName),
	})
	if err != nil {
		t.Fatalf("Failed to create test bucket: %v", err)
	}
}

// cleanupTestBucket removes all objects from the test bucket
func cleanupTestBucket(t *testing.T, client *s3.Client) {
	ctx := context.Background()

	listOutput, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(testBucketName),
	})
	if err != nil {
		t.Logf("Warning: failed to list objects: %v", err)
		return
	}

	for _, obj := range listOutput.Contents {
		_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(testBucketName),
			Key:    obj.Key,
		})
		if err != nil {
			t.Logf("Warning: failed to delete object %s: %v", *obj.Key, err)
		}
	}
}

// newMinioWriter builds an S3Writer against the Minio client.
func newMinioWriter(client *s3.Client, prefix string) *S3Writer {
	return &S3Writer{
		client:  client,
		bucket:  testBucketName,
		prefix:  prefix,
		podName: "test-pod",
		logger:  utils.NewLogger("test"),
	}
}

// TestS3Integration_WriteBatch tests writing a batch of records to S3
func TestS3Integration_WriteBatch(t *testing.T) {
	if !isMinioAvailable(t) {
		return
	}

	client, err := createMinioClient()
	if err != nil {
		t.Fatalf("Failed to create Minio client: %v", err)
	}

	setupTestBucket(t, client)
	defer cleanupTestBucket(t, client)

	ctx := context.Background()
	writer := newMinioWriter(client, "test-usage/")

	records := []*ArchiveRecord{
		{
			Timestamp:    time.Now(),
			RequestID:    "req-1",
			APIKey:       "api_12345...abcd",
			Operation:    "text",
			CostCredits:  1,
			DownstreamMs: 1000,
			GatewayMs:    1050,
		},
		{
			Timestamp:    time.Now(),
			RequestID:    "req-2",
			APIKey:       "api_67890...wxyz",
			Operation:    "image",
			CostCredits:  5,
			DownstreamMs: 800,
			GatewayMs:    850,
		},
	}

	key, err := writer.WriteBatch(ctx, records)
	if err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}

	if key == "" {
		t.Fatal("Expected non-empty S3 key")
	}

	t.Logf("Wrote batch to S3 key: %s", key)

	// Verify the object exists
	getOutput, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(testBucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		t.Fatalf("Failed to get object from S3: %v", err)
	}
	defer getOutput.Body.Close()

	body, err := io.ReadAll(getOutput.Body)
	if err != nil {
		t.Fatalf("Failed to read object body: %v", err)
	}

	// Parse JSON Lines
	lines := 0
	for _, line := range splitLines(string(body)) {
		if line == "" {
			continue
		}
		var record ArchiveRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("Failed to parse JSON line: %v", err)
		}
		lines++
	}

	if lines != len(records) {
		t.Errorf("Expected %d lines, got %d", len(records), lines)
	}

	// Verify content type
	if getOutput.ContentType == nil || *getOutput.ContentType != "application/x-ndjson" {
		t.Errorf("Expected content type application/x-ndjson, got %v", getOutput.ContentType)
	}
}

// TestS3Integration_ArchiveSink tests the full sink with enqueue and flush
func TestS3Integration_ArchiveSink(t *testing.T) {
	if !isMinioAvailable(t) {
		return
	}

	client, err := createMinioClient()
	if err != nil {
		t.Fatalf("Failed to create Minio client: %v", err)
	}

	setupTestBucket(t, client)
	defer cleanupTestBucket(t, client)

	ctx := context.Background()
	prefix := "sink-test/"
	writer := newMinioWriter(client, prefix)

	q := queue.NewMemoryQueue(queue.DefaultConfig("s3-sink-test"))
	sink := NewArchiveSink(q, writer, ArchiveSinkConfig{
		FlushSize:     5,
		FlushInterval: 500 * time.Millisecond,
	})

	for i := 0; i < 10; i++ {
		record := &ArchiveRecord{
			Timestamp:    time.Now(),
			RequestID:    fmt.Sprintf("req-%d", i),
			APIKey:       "api_test1...key1",
			Operation:    "text",
			CostCredits:  1,
			DownstreamMs: int64(100 * (i + 1)),
			GatewayMs:    int64(100*(i+1) + 50),
		}

		if err := sink.Enqueue(record); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sink.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// List objects in bucket
	listOutput, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(testBucketName),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		t.Fatalf("Failed to list objects: %v", err)
	}

	if len(listOutput.Contents) == 0 {
		t.Fatal("Expected at least one object in S3, got none")
	}

	t.Logf("Found %d objects in S3", len(listOutput.Contents))

	// Verify total records across all files
	totalRecords := 0
	for _, obj := range listOutput.Contents {
		getOutput, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(testBucketName),
			Key:    obj.Key,
		})
		if err != nil {
			t.Fatalf("Failed to get object %s: %v", *obj.Key, err)
		}

		body, err := io.ReadAll(getOutput.Body)
		getOutput.Body.Close()
		if err != nil {
			t.Fatalf("Failed to read body: %v", err)
		}

		for _, line := range splitLines(string(body)) {
			if line != "" {
				totalRecords++
			}
		}
	}

	if totalRecords != 10 {
		t.Errorf("Expected 10 total records in S3, got %d", totalRecords)
	}
}

// Helper function to split string into lines
func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
