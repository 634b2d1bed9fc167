package sender

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// SESSender sends through AWS SES using the SDK v2.
type SESSender struct {
	region string
	client *sesv2.Client
}

// NewSESSender creates an SES sender. Initializes the AWS SDK client if
// credentials are provided.
func NewSESSender(accessKey, secretKey, region string) *SESSender {
	if region == "" {
		region = "us-east-1"
	}

	sender := &SESSender{region: region}

	if accessKey != "" && secretKey != "" {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		)
		if err != nil {
			log.Printf("[SES] Warning: Failed to initialize AWS config: %v", err)
		} else {
			sender.client = sesv2.NewFromConfig(cfg)
		}
	}

	return sender
}

// Send delivers a single message through AWS SES.
func (s *SESSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	if s.client == nil {
		return nil, fmt.Errorf("SES client not initialized - check credentials")
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", msg.FromName, msg.FromAddress)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
			{Name: aws.String("distribution_id"), Value: aws.String(msg.DistributionID)},
		},
	}

	if msg.TextBody != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		log.Printf("[SES] Failed to send to %s: %v", logger.RedactAddress(msg.To), err)
		return &Result{Success: false, Error: err, Provider: "ses"}, nil
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}

	log.Printf("[SES] Sent to %s (id: %s)", logger.RedactAddress(msg.To), messageID)

	return &Result{
		Success:   true,
		MessageID: messageID,
		Provider:  "ses",
		SentAt:    time.Now(),
	}, nil
}
