package main

import (
	"context"
	"fmt"
	"os"
	"time"

	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/spf13/cobra"

	"github.com/stacktide/stacktide/internal/aws"
	"github.com/stacktide/stacktide/internal/config"
	"github.com/stacktide/stacktide/internal/output"
	"github.com/stacktide/stacktide/internal/params"
	"github.com/stacktide/stacktide/internal/status"
	"github.com/stacktide/stacktide/internal/tailer"
)

var (
	profile      string
	region       string
	stackName    string
	templatePath string
	dataFiles    []string
	outputFormat string
	pollInterval time.Duration

	// AssumeRole parameters
	assumeRole  string
	sessionName string
	duration    int32
	externalID  string
)

// deployFailedError marks a stack that reached a failure status after the
// deploy itself ran to completion.
type deployFailedError struct {
	stackStatus string
}

func (e *deployFailedError) Error() string {
	return fmt.Sprintf("stack reached %s", e.stackStatus)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "stacktide",
		Short: "Deploy CloudFormation stacks and tail their convergence",
	}

	deployCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Create or update a stack and follow its events until it settles",
		Long: `deploy resolves template parameters from the given datasource files,
creates the stack (or updates it if it already exists), and streams stack
events until the operation reaches a terminal status. The exit code is
non-zero when the stack ends in a failure or rollback status.`,
		RunE: runDeploy,
	}

	deployCmd.Flags().StringVarP(&profile, "profile", "p", "default", "AWS profile name")
	deployCmd.Flags().StringVarP(&region, "region", "r", "", "AWS region name (required)")
	deployCmd.Flags().StringVarP(&stackName, "stack-name", "n", "", "Stack name (required)")
	deployCmd.Flags().StringVarP(&templatePath, "template", "t", "", "Path to the JSON template body (required)")
	deployCmd.Flags().StringArrayVarP(&dataFiles, "data", "d", nil, "YAML datasource file; repeat to build a fallback chain, first match wins")
	deployCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, json)")
	deployCmd.Flags().DurationVar(&pollInterval, "poll-interval", 5*time.Second, "Delay between event polls")

	// AssumeRole flags
	deployCmd.Flags().StringVar(&assumeRole, "assume-role", "", "ARN of the IAM role to assume")
	deployCmd.Flags().StringVar(&sessionName, "session-name", "stacktide-session", "Session name for the assumed role session")
	deployCmd.Flags().Int32Var(&duration, "duration", 3600, "Session duration in seconds (900-43200)")
	deployCmd.Flags().StringVar(&externalID, "external-id", "", "External ID for AssumeRole (required by some roles for security)")

	deployCmd.MarkFlagRequired("region")
	deployCmd.MarkFlagRequired("stack-name")
	deployCmd.MarkFlagRequired("template")

	rootCmd.AddCommand(deployCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg := config.Config{
		Profile:      profile,
		Region:       region,
		StackName:    stackName,
		TemplatePath: templatePath,
		DataFiles:    dataFiles,
		OutputFormat: outputFormat,
		PollInterval: pollInterval,
	}
	if assumeRole != "" {
		cfg.AssumeRole = &config.AssumeRoleConfig{
			RoleARN:     assumeRole,
			SessionName: sessionName,
			Duration:    duration,
			ExternalID:  externalID,
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	templateBody, parameters, err := resolveParameters(cfg)
	if err != nil {
		return err
	}

	formatter, err := output.FormatterFactory(cfg.OutputFormat)
	if err != nil {
		return err
	}

	client, err := connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create AWS client: %w", err)
	}

	return deploy(ctx, client, cfg, templateBody, parameters, formatter)
}

// resolveParameters loads the template and datasource files and resolves
// the full parameter list. Any unresolvable required parameter fails here,
// before a single provisioning call is made.
func resolveParameters(cfg config.Config) (string, []cfntypes.Parameter, error) {
	body, err := os.ReadFile(cfg.TemplatePath)
	if err != nil {
		return "", nil, fmt.Errorf("read template: %w", err)
	}

	tmpl, err := params.ParseTemplate(body)
	if err != nil {
		return "", nil, err
	}

	var chain params.ChainSource
	for _, path := range cfg.DataFiles {
		f, err := os.Open(path)
		if err != nil {
			return "", nil, fmt.Errorf("open datasource %s: %w", path, err)
		}
		src, err := params.LoadYAMLSource(f)
		f.Close()
		if err != nil {
			return "", nil, fmt.Errorf("datasource %s: %w", path, err)
		}
		chain = append(chain, src)
	}

	resolved, err := params.Resolve(tmpl, chain)
	if err != nil {
		return "", nil, err
	}
	return string(body), resolved, nil
}

func connect(ctx context.Context, cfg config.Config) (*aws.Client, error) {
	creds := aws.Credentials{
		Profile: cfg.Profile,
		Region:  cfg.Region,
	}
	if cfg.AssumeRole != nil {
		creds.AssumeRole = &aws.AssumeRole{
			RoleARN:     cfg.AssumeRole.RoleARN,
			SessionName: cfg.AssumeRole.SessionName,
			Duration:    cfg.AssumeRole.Duration,
			ExternalID:  cfg.AssumeRole.ExternalID,
		}
	}
	return aws.Connect(ctx, creds)
}

// deploy starts the create or update and follows the event feed. The tailer
// is constructed before the operation is triggered so no early event can
// occur unobserved.
func deploy(ctx context.Context, client *aws.Client, cfg config.Config, templateBody string, parameters []cfntypes.Parameter, formatter output.Formatter) error {
	exists, err := client.StackExists(ctx, cfg.StackName)
	if err != nil {
		return err
	}

	var t *tailer.Tailer
	if exists {
		// Construct the tailer before triggering the update so no event
		// emitted between the two calls slips past unobserved.
		t, err = tailer.New(ctx, client, cfg.StackName, tailer.WithPollInterval(cfg.PollInterval))
		if err != nil {
			return err
		}
		updated, err := client.UpdateStack(ctx, cfg.StackName, templateBody, parameters)
		if err != nil {
			return err
		}
		if !updated {
			fmt.Println("No changes to deploy.")
			return nil
		}
	} else {
		if err := client.CreateStack(ctx, cfg.StackName, templateBody, parameters); err != nil {
			return err
		}
		// A brand new stack has no prior history; tail from the start.
		t, err = tailer.New(ctx, client, cfg.StackName, tailer.WithCursor(0), tailer.WithPollInterval(cfg.PollInterval))
		if err != nil {
			return err
		}
	}

	return follow(ctx, t, formatter)
}

func follow(ctx context.Context, t *tailer.Tailer, formatter output.Formatter) error {
	for item, err := range t.Follow(ctx) {
		if err != nil {
			return err
		}
		line, err := formatter.FormatItem(item)
		if err != nil {
			return err
		}
		fmt.Println(line)

		if item.Outcome != nil && item.Outcome.State == status.Failure {
			return &deployFailedError{stackStatus: item.Outcome.StackStatus}
		}
	}
	return nil
}
