package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/smithy-go"
)

// AthenaAPI is the subset of the Athena client used here.
type AthenaAPI interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
}

var _ AthenaAPI = (*athena.Client)(nil)
var _ QueryService = (*AthenaService)(nil)

// AWSCredentials are passed explicitly to every AWS client; nothing is
// read from or written to the process environment here.
type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

func (c AWSCredentials) provider() aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken)
}

// check fails when the credentials cannot possibly be used.
func (c AWSCredentials) check(ctx context.Context) error {
	if c.Region == "" {
		return errors.New("region is required")
	}
	if _, err := c.provider().Retrieve(ctx); err != nil {
		return err
	}
	return nil
}

type AthenaService struct {
	client    AthenaAPI
	workGroup string
}

func NewAthenaService(ctx context.Context, creds AWSCredentials, workGroup string) (*AthenaService, error) {
	if err := creds.check(ctx); err != nil {
		return nil, &AuthenticationError{Service: "Athena", Err: err}
	}
	client := athena.New(athena.Options{
		Region:      creds.Region,
		Credentials: creds.provider(),
	})
	return NewAthenaServiceWithClient(client, workGroup), nil
}

func NewAthenaServiceWithClient(client AthenaAPI, workGroup string) *AthenaService {
	return &AthenaService{client: client, workGroup: workGroup}
}

func (s *AthenaService) StartQuery(ctx context.Context, req QueryRequest) (JobHandle, error) {
	in := &athena.StartQueryExecutionInput{
		QueryString: aws.String(req.Query),
		ResultConfiguration: &types.ResultConfiguration{
			OutputLocation: aws.String(req.OutputLocation),
		},
	}
	if req.Database != "" {
		in.QueryExecutionContext = &types.QueryExecutionContext{
			Database: aws.String(req.Database),
		}
	}
	if s.workGroup != "" {
		in.WorkGroup = aws.String(s.workGroup)
	}

	out, err := s.client.StartQueryExecution(ctx, in)
	if err != nil {
		if isAuthError(err) {
			return "", &AuthenticationError{Service: "Athena", Err: err}
		}
		return "", &SubmissionError{Err: err}
	}
	if out.QueryExecutionId == nil {
		return "", &SubmissionError{Err: errors.New("no query execution id returned")}
	}
	return JobHandle(*out.QueryExecutionId), nil
}

func (s *AthenaService) GetStatus(ctx context.Context, handle JobHandle) (JobStatus, error) {
	out, err := s.client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
		QueryExecutionId: aws.String(string(handle)),
	})
	if err != nil {
		return JobStatus{}, err
	}
	qe := out.QueryExecution
	if qe == nil || qe.Status == nil {
		return JobStatus{}, fmt.Errorf("query execution %s has no status", handle)
	}

	status := JobStatus{
		Handle: handle,
		State:  athenaState(qe.Status.State),
		Reason: aws.ToString(qe.Status.StateChangeReason),
	}
	if qe.ResultConfiguration != nil {
		status.OutputLocation = aws.ToString(qe.ResultConfiguration.OutputLocation)
	}
	return status, nil
}

func athenaState(s types.QueryExecutionState) JobState {
	switch s {
	case types.QueryExecutionStateQueued:
		return StateQueued
	case types.QueryExecutionStateSucceeded:
		return StateSucceeded
	case types.QueryExecutionStateFailed:
		return StateFailed
	case types.QueryExecutionStateCancelled:
		return StateCancelled
	default:
		return StateRunning
	}
}

var authErrorCodes = map[string]bool{
	"UnrecognizedClientException": true,
	"InvalidSignatureException":   true,
	"AccessDeniedException":       true,
	"ExpiredTokenException":       true,
	"InvalidClientTokenId":        true,
}

func isAuthError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return authErrorCodes[apiErr.ErrorCode()]
	}
	return false
}
