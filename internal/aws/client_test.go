package aws

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCloudFormationAPI implements CloudFormationAPI for testing
type mockCloudFormationAPI struct {
	listStacksFunc          func(ctx context.Context, params *cloudformation.ListStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListStacksOutput, error)
	describeStacksFunc      func(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	describeStackEventsFunc func(ctx context.Context, params *cloudformation.DescribeStackEventsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error)
	createStackFunc         func(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	updateStackFunc         func(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
}

func (m *mockCloudFormationAPI) ListStacks(ctx context.Context, params *cloudformation.ListStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListStacksOutput, error) {
	if m.listStacksFunc != nil {
		return m.listStacksFunc(ctx, params, optFns...)
	}
	return &cloudformation.ListStacksOutput{}, nil
}

func (m *mockCloudFormationAPI) DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	if m.describeStacksFunc != nil {
		return m.describeStacksFunc(ctx, params, optFns...)
	}
	return &cloudformation.DescribeStacksOutput{}, nil
}

func (m *mockCloudFormationAPI) DescribeStackEvents(ctx context.Context, params *cloudformation.DescribeStackEventsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error) {
	if m.describeStackEventsFunc != nil {
		return m.describeStackEventsFunc(ctx, params, optFns...)
	}
	return &cloudformation.DescribeStackEventsOutput{}, nil
}

func (m *mockCloudFormationAPI) CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	if m.createStackFunc != nil {
		return m.createStackFunc(ctx, params, optFns...)
	}
	return &cloudformation.CreateStackOutput{}, nil
}

func (m *mockCloudFormationAPI) UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	if m.updateStackFunc != nil {
		return m.updateStackFunc(ctx, params, optFns...)
	}
	return &cloudformation.UpdateStackOutput{}, nil
}

func TestClient_StackExists(t *testing.T) {
	tests := []struct {
		name      string
		stackName string
		summaries []types.StackSummary
		expected  bool
	}{
		{
			name:      "stack present",
			stackName: "app-prod",
			summaries: []types.StackSummary{
				{StackName: aws.String("app-staging"), StackStatus: types.StackStatusUpdateComplete},
				{StackName: aws.String("app-prod"), StackStatus: types.StackStatusCreateComplete},
			},
			expected: true,
		},
		{
			name:      "stack absent",
			stackName: "app-prod",
			summaries: []types.StackSummary{
				{StackName: aws.String("app-staging"), StackStatus: types.StackStatusUpdateComplete},
			},
			expected: false,
		},
		{
			name:      "empty listing",
			stackName: "app-prod",
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockCloudFormationAPI{
				listStacksFunc: func(ctx context.Context, params *cloudformation.ListStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListStacksOutput, error) {
					return &cloudformation.ListStacksOutput{StackSummaries: tt.summaries}, nil
				},
			}

			client := NewClient(mock, "us-east-1")
			exists, err := client.StackExists(context.Background(), tt.stackName)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, exists)
		})
	}
}

func TestClient_StackExists_FiltersOutDeleted(t *testing.T) {
	var captured []types.StackStatus
	mock := &mockCloudFormationAPI{
		listStacksFunc: func(ctx context.Context, params *cloudformation.ListStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListStacksOutput, error) {
			captured = params.StackStatusFilter
			return &cloudformation.ListStacksOutput{}, nil
		},
	}

	client := NewClient(mock, "us-east-1")
	exists, err := client.StackExists(context.Background(), "gone-stack")

	require.NoError(t, err)
	assert.False(t, exists, "a stack whose only status is DELETE_COMPLETE must read as nonexistent")
	assert.NotContains(t, captured, types.StackStatusDeleteComplete)
	assert.Contains(t, captured, types.StackStatusCreateComplete)
}

func TestClient_StackExists_Paginates(t *testing.T) {
	mock := &mockCloudFormationAPI{
		listStacksFunc: func(ctx context.Context, params *cloudformation.ListStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListStacksOutput, error) {
			if params.NextToken == nil {
				return &cloudformation.ListStacksOutput{
					StackSummaries: []types.StackSummary{
						{StackName: aws.String("stack-page-1")},
					},
					NextToken: aws.String("page-2"),
				}, nil
			}
			return &cloudformation.ListStacksOutput{
				StackSummaries: []types.StackSummary{
					{StackName: aws.String("stack-page-2")},
				},
			}, nil
		},
	}

	client := NewClient(mock, "us-east-1")
	exists, err := client.StackExists(context.Background(), "stack-page-2")

	require.NoError(t, err)
	assert.True(t, exists)
}

func TestClient_StackExists_BackendError(t *testing.T) {
	mock := &mockCloudFormationAPI{
		listStacksFunc: func(ctx context.Context, params *cloudformation.ListStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListStacksOutput, error) {
			return nil, assert.AnError
		},
	}

	client := NewClient(mock, "us-east-1")
	_, err := client.StackExists(context.Background(), "any")

	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, ErrorTypeProvisioning, typed.Type)
}

func TestClient_CreateStack(t *testing.T) {
	var captured *cloudformation.CreateStackInput
	mock := &mockCloudFormationAPI{
		createStackFunc: func(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
			captured = params
			return &cloudformation.CreateStackOutput{}, nil
		},
	}

	parameters := []types.Parameter{
		{ParameterKey: aws.String("Env"), ParameterValue: aws.String("prod")},
	}

	client := NewClient(mock, "us-east-1")
	err := client.CreateStack(context.Background(), "app-prod", `{"Resources":{}}`, parameters)

	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, "app-prod", aws.ToString(captured.StackName))
	assert.Equal(t, `{"Resources":{}}`, aws.ToString(captured.TemplateBody))
	assert.Equal(t, parameters, captured.Parameters)
	assert.True(t, aws.ToBool(captured.DisableRollback), "failed creations must stay up for diagnosis")
	assert.Equal(t, []types.Capability{types.CapabilityCapabilityIam}, captured.Capabilities)
}

func TestClient_CreateStack_BackendError(t *testing.T) {
	mock := &mockCloudFormationAPI{
		createStackFunc: func(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
			return nil, assert.AnError
		},
	}

	client := NewClient(mock, "us-east-1")
	err := client.CreateStack(context.Background(), "app-prod", "{}", nil)

	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, ErrorTypeProvisioning, typed.Type)
}

func TestClient_UpdateStack(t *testing.T) {
	tests := []struct {
		name        string
		mockError   error
		expected    bool
		expectError bool
	}{
		{
			name:     "update accepted",
			expected: true,
		},
		{
			name: "no updates to perform is a benign no-op",
			mockError: &smithy.GenericAPIError{
				Code:    "ValidationError",
				Message: "No updates are to be performed.",
			},
			expected: false,
		},
		{
			name: "other validation errors propagate",
			mockError: &smithy.GenericAPIError{
				Code:    "ValidationError",
				Message: "Template format error: JSON not well-formed",
			},
			expectError: true,
		},
		{
			name:        "plain errors propagate",
			mockError:   assert.AnError,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockCloudFormationAPI{
				updateStackFunc: func(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
					if tt.mockError != nil {
						return nil, tt.mockError
					}
					return &cloudformation.UpdateStackOutput{}, nil
				},
			}

			client := NewClient(mock, "us-east-1")
			updated, err := client.UpdateStack(context.Background(), "app-prod", "{}", nil)

			if tt.expectError {
				var typed *Error
				require.ErrorAs(t, err, &typed)
				assert.Equal(t, ErrorTypeProvisioning, typed.Type)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, updated)
		})
	}
}

func TestClient_DescribeStack(t *testing.T) {
	mock := &mockCloudFormationAPI{
		describeStacksFunc: func(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
			assert.Equal(t, "app-prod", aws.ToString(params.StackName))
			return &cloudformation.DescribeStacksOutput{
				Stacks: []types.Stack{
					{
						StackName:   aws.String("app-prod"),
						StackStatus: types.StackStatusUpdateInProgress,
					},
				},
			}, nil
		},
	}

	client := NewClient(mock, "us-east-1")
	stack, err := client.DescribeStack(context.Background(), "app-prod")

	require.NoError(t, err)
	require.NotNil(t, stack)
	assert.Equal(t, types.StackStatusUpdateInProgress, stack.StackStatus)
}

func TestClient_DescribeStack_Empty(t *testing.T) {
	client := NewClient(&mockCloudFormationAPI{}, "us-east-1")

	_, err := client.DescribeStack(context.Background(), "missing")

	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, ErrorTypeProvisioning, typed.Type)
}

func TestClient_ListStackEvents_NewestFirstAcrossPages(t *testing.T) {
	now := time.Now().UTC()
	mock := &mockCloudFormationAPI{
		describeStackEventsFunc: func(ctx context.Context, params *cloudformation.DescribeStackEventsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error) {
			if params.NextToken == nil {
				return &cloudformation.DescribeStackEventsOutput{
					StackEvents: []types.StackEvent{
						{LogicalResourceId: aws.String("newest"), Timestamp: aws.Time(now)},
					},
					NextToken: aws.String("page-2"),
				}, nil
			}
			return &cloudformation.DescribeStackEventsOutput{
				StackEvents: []types.StackEvent{
					{LogicalResourceId: aws.String("oldest"), Timestamp: aws.Time(now.Add(-time.Minute))},
				},
			}, nil
		},
	}

	client := NewClient(mock, "us-east-1")
	events, err := client.ListStackEvents(context.Background(), "app-prod")

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "newest", aws.ToString(events[0].LogicalResourceId))
	assert.Equal(t, "oldest", aws.ToString(events[1].LogicalResourceId))
}

func TestClient_ListStackEvents_BackendError(t *testing.T) {
	mock := &mockCloudFormationAPI{
		describeStackEventsFunc: func(ctx context.Context, params *cloudformation.DescribeStackEventsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error) {
			return nil, assert.AnError
		},
	}

	client := NewClient(mock, "us-east-1")
	_, err := client.ListStackEvents(context.Background(), "app-prod")

	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, ErrorTypeProvisioning, typed.Type)
}
