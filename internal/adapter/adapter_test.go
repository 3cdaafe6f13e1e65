package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamotypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sitewatch/visitorfn/internal/config"
	"github.com/sitewatch/visitorfn/internal/metrics"
	"github.com/sitewatch/visitorfn/internal/router"
	"github.com/sitewatch/visitorfn/pkg/response"
)

type stubDynamo struct{}

func (stubDynamo) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: map[string]dynamotypes.AttributeValue{
		"counterId":    &dynamotypes.AttributeValueMemberS{Value: "homePage"},
		"visitorCount": &dynamotypes.AttributeValueMemberN{Value: "41"},
	}}, nil
}

func (stubDynamo) UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return &dynamodb.UpdateItemOutput{Attributes: map[string]dynamotypes.AttributeValue{
		"visitorCount": &dynamotypes.AttributeValueMemberN{Value: "42"},
	}}, nil
}

func (stubDynamo) PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return &dynamodb.PutItemOutput{}, nil
}

func (stubDynamo) DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{Table: &dynamotypes.TableDescription{TableStatus: dynamotypes.TableStatusActive}}, nil
}

type stubEC2 struct{}

func (stubEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{
		Instances: []ec2types.Instance{{
			InstanceId: aws.String(in.InstanceIds[0]),
			State:      &ec2types.InstanceState{Name: ec2types.InstanceStateNameStopped},
		}},
	}}}, nil
}

func (stubEC2) StartInstances(context.Context, *ec2.StartInstancesInput, ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	return &ec2.StartInstancesOutput{}, nil
}

type stubSNS struct{ published int }

func (s *stubSNS) Publish(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
	s.published++
	return &sns.PublishOutput{MessageId: aws.String("m")}, nil
}

func testConfig() *config.Configuration {
	cfg := config.NewDefault()
	cfg.Counter.TableName = "visitor-counter"
	cfg.Renewal.InstanceID = "i-0123456789abcdef0"
	return cfg
}

func TestValidateInstanceID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"long id", "i-0123456789abcdef0", false},
		{"short id", "i-0123abcd", false},
		{"placeholder", config.PlaceholderInstanceID, false},
		{"empty", "", true},
		{"uppercase", "i-0123456789ABCDEF0", true},
		{"wrong prefix", "ami-0123456789abcdef0", true},
		{"wrong length", "i-0123456789", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateInstanceID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateInstanceID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestNewWithClients_InvalidConfig(t *testing.T) {
	t.Parallel()

	t.Run("nil config", func(t *testing.T) {
		if _, err := NewWithClients(nil, Clients{}, nil); err == nil {
			t.Error("expected error for nil configuration")
		}
	})

	t.Run("missing table", func(t *testing.T) {
		cfg := testConfig()
		cfg.Counter.TableName = ""
		_, err := NewWithClients(cfg, Clients{}, nil)
		if err == nil || !strings.Contains(err.Error(), "counter table name is required") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("bad instance id", func(t *testing.T) {
		cfg := testConfig()
		cfg.Renewal.InstanceID = "web-server"
		_, err := NewWithClients(cfg, Clients{}, nil)
		if err == nil || !strings.Contains(err.Error(), "not an EC2 instance id") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestNewWithClients_Wiring(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Renewal.TopicARN = "arn:aws:sns:us-east-1:123456789012:renewals"
	notifications := &stubSNS{}

	a, err := NewWithClients(cfg, Clients{DynamoDB: stubDynamo{}, EC2: stubEC2{}, SNS: notifications}, nil)
	if err != nil {
		t.Fatalf("NewWithClients() error = %v", err)
	}
	if a.Metrics() == nil {
		t.Error("metrics should be enabled by default")
	}
	if a.Config() != cfg {
		t.Error("Config() does not return the input configuration")
	}
	if a.Counter() == nil || a.Renewal() == nil {
		t.Fatal("services not wired")
	}

	ctx := context.Background()
	resp := a.Router().Handle(ctx, router.Request{Method: http.MethodGet, Path: "/counter"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /counter status = %d", resp.StatusCode)
	}
	body, err := response.Decode(resp)
	if err != nil {
		t.Fatal(err)
	}
	if body["count"] != json.Number("41") {
		t.Errorf("count = %v, want 41", body["count"])
	}

	resp = a.Router().Handle(ctx, router.Request{Method: http.MethodPost, Path: "/ssl/renew"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /ssl/renew status = %d", resp.StatusCode)
	}
	if notifications.published != 1 {
		t.Errorf("published = %d, want 1", notifications.published)
	}

	if err := a.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestMetricsConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	mc := MetricsConfig(cfg)
	if mc.Namespace != metrics.DefaultNamespace {
		t.Errorf("Namespace = %s", mc.Namespace)
	}
	if mc.Labels["table"] != cfg.Counter.TableName || mc.Labels["counter_id"] != cfg.Counter.CounterID {
		t.Errorf("Labels = %v", mc.Labels)
	}

	a, err := NewWithClients(cfg, Clients{DynamoDB: stubDynamo{}, EC2: stubEC2{}, SNS: &stubSNS{}}, nil)
	if err != nil {
		t.Fatalf("NewWithClients() error = %v", err)
	}
	a.Router().Handle(context.Background(), router.Request{Method: http.MethodGet, Path: "/counter"})

	families, err := a.Metrics().Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() != "visitorfn_counter_value" {
			continue
		}
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			if lp.GetName() == "table" && lp.GetValue() == cfg.Counter.TableName {
				found = true
			}
		}
	}
	if !found {
		t.Error("counter gauge is missing the table label")
	}
}

func TestNewWithClients_MetricsDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.EnableMetrics = false

	a, err := NewWithClients(cfg, Clients{DynamoDB: stubDynamo{}, EC2: stubEC2{}, SNS: &stubSNS{}}, nil)
	if err != nil {
		t.Fatalf("NewWithClients() error = %v", err)
	}
	if a.Metrics() != nil {
		t.Error("metrics should be disabled")
	}

	resp := a.Router().Handle(context.Background(), router.Request{Method: http.MethodPost, Path: "/counter"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("POST /counter status = %d", resp.StatusCode)
	}
}

func TestAWSConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AWS.Region = "eu-north-1"
	cfg.AWS.Endpoint = "http://localhost:4566"
	cfg.AWS.MaxAttempts = 7
	cfg.AWS.RetryMode = "standard"
	cfg.AWS.PoolSize = 4
	cfg.AWS.ConnectTimeout = 2 * time.Second

	got := AWSConfig(cfg)
	if got.Region != "eu-north-1" || got.Endpoint != "http://localhost:4566" {
		t.Errorf("region/endpoint = %s/%s", got.Region, got.Endpoint)
	}
	if got.MaxAttempts != 7 || got.RetryMode != "standard" || got.PoolSize != 4 {
		t.Errorf("retry/pool = %d/%s/%d", got.MaxAttempts, got.RetryMode, got.PoolSize)
	}
	if got.ConnectTimeout != 2*time.Second {
		t.Errorf("connect timeout = %v", got.ConnectTimeout)
	}
}

func TestNew_StaticCredentials(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AWS.Endpoint = "http://localhost:4566"
	cfg.AWS.AccessKeyID = "test"
	cfg.AWS.SecretAccessKey = "test"

	core, logs := observer.New(zapcore.InfoLevel)
	a, err := New(context.Background(), cfg, zap.New(core))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Router() == nil {
		t.Error("router not wired")
	}

	ready := logs.FilterMessage("aws clients ready").All()
	if len(ready) != 1 {
		t.Fatalf("aws clients ready logged %d times", len(ready))
	}
	if got := ready[0].ContextMap()["region"]; got != cfg.AWS.Region {
		t.Errorf("logged region = %v, want %s", got, cfg.AWS.Region)
	}
}
