package alertxses

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/gardenledger/fieldsync/pkg/alertx"
)

// SESProvider delivers alerts as email via AWS SES.
type SESProvider struct {
	client      *ses.Client
	fromAddress string
	toAddresses []string
}

// NewSESProvider creates a new SES alert provider.
func NewSESProvider(client *ses.Client, fromAddress string, toAddresses []string) *SESProvider {
	return &SESProvider{
		client:      client,
		fromAddress: fromAddress,
		toAddresses: toAddresses,
	}
}

// Send emails the alert to the configured operator addresses.
func (p *SESProvider) Send(ctx context.Context, alert alertx.Alert) error {
	subject := fmt.Sprintf("[fieldsync][%s] %s", alert.Severity, alert.Subject)

	input := &ses.SendEmailInput{
		Source: aws.String(p.fromAddress),
		Destination: &types.Destination{
			ToAddresses: p.toAddresses,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(alert.Body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := p.client.SendEmail(ctx, input); err != nil {
		return sesErrors.NewWithCause(ErrSendFailed, err).
			WithDetail("to", p.toAddresses).
			WithDetail("subject", alert.Subject)
	}
	return nil
}
