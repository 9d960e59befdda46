// Package aws wraps the CloudFormation service client behind a small
// synchronous façade for the stack operations stacktide drives.
package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"

	"github.com/stacktide/stacktide/internal/status"
)

// CloudFormationAPI is the subset of the CloudFormation client the gateway
// needs. Narrow on purpose: it keeps tests on hand-rolled mocks and stays
// compatible with the SDK paginators.
type CloudFormationAPI interface {
	ListStacks(ctx context.Context, params *cloudformation.ListStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListStacksOutput, error)
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	DescribeStackEvents(ctx context.Context, params *cloudformation.DescribeStackEventsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error)
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
}

var _ CloudFormationAPI = (*cloudformation.Client)(nil)

// Client is the stack gateway: five remote operations, no state beyond the
// wrapped service client.
type Client struct {
	cf     CloudFormationAPI
	region string
}

// NewClient wraps a CloudFormation client for the given region.
func NewClient(cf CloudFormationAPI, region string) *Client {
	return &Client{
		cf:     cf,
		region: region,
	}
}

// Region returns the region the client was built for.
func (c *Client) Region() string {
	return c.region
}

// StackExists reports whether name appears among stacks in any status other
// than DELETE_COMPLETE. Deleted stacks are deliberately filtered out of the
// listing to keep the call cheap, so a stack that finished deleting reads
// as nonexistent even though the backend still remembers it.
func (c *Client) StackExists(ctx context.Context, name string) (bool, error) {
	input := &cloudformation.ListStacksInput{
		StackStatusFilter: status.ActiveStatuses(),
	}

	paginator := cloudformation.NewListStacksPaginator(c.cf, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return false, provisioningError("list stacks", err)
		}
		for _, summary := range page.StackSummaries {
			if aws.ToString(summary.StackName) == name {
				return true, nil
			}
		}
	}
	return false, nil
}

// CreateStack initiates stack creation. Rollback is disabled so a failed
// stack stays up for diagnosis, and CAPABILITY_IAM is granted for templates
// that touch access control.
func (c *Client) CreateStack(ctx context.Context, name, templateBody string, parameters []types.Parameter) error {
	_, err := c.cf.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:       aws.String(name),
		TemplateBody:    aws.String(templateBody),
		Parameters:      parameters,
		DisableRollback: aws.Bool(true),
		Capabilities:    []types.Capability{types.CapabilityCapabilityIam},
	})
	if err != nil {
		return provisioningError(fmt.Sprintf("create stack %s", name), err)
	}
	return nil
}

// UpdateStack initiates a stack update. The boolean is false when the
// backend reports there is nothing to change, which is a benign no-op
// rather than an error; every other rejection propagates.
func (c *Client) UpdateStack(ctx context.Context, name, templateBody string, parameters []types.Parameter) (bool, error) {
	_, err := c.cf.UpdateStack(ctx, &cloudformation.UpdateStackInput{
		StackName:    aws.String(name),
		TemplateBody: aws.String(templateBody),
		Parameters:   parameters,
		Capabilities: []types.Capability{types.CapabilityCapabilityIam},
	})
	if err != nil {
		if isNoUpdates(err) {
			return false, nil
		}
		return false, provisioningError(fmt.Sprintf("update stack %s", name), err)
	}
	return true, nil
}

// isNoUpdates matches the backend's "nothing to update" rejection. It comes
// back as a generic ValidationError, so after checking the code the message
// text is the only discriminator CloudFormation offers.
func isNoUpdates(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationError" &&
		strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed")
}

// DescribeStack returns the current state of a single stack.
func (c *Client) DescribeStack(ctx context.Context, name string) (*types.Stack, error) {
	out, err := c.cf.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(name),
	})
	if err != nil {
		return nil, provisioningError(fmt.Sprintf("describe stack %s", name), err)
	}
	if len(out.Stacks) == 0 {
		return nil, provisioningError(fmt.Sprintf("stack %s not found", name), nil)
	}
	return &out.Stacks[0], nil
}

// ListStackEvents returns the full event history for a stack, newest first,
// exactly as the backend orders it.
func (c *Client) ListStackEvents(ctx context.Context, name string) ([]types.StackEvent, error) {
	var events []types.StackEvent

	paginator := cloudformation.NewDescribeStackEventsPaginator(c.cf, &cloudformation.DescribeStackEventsInput{
		StackName: aws.String(name),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, provisioningError(fmt.Sprintf("list events for stack %s", name), err)
		}
		events = append(events, page.StackEvents...)
	}
	return events, nil
}
