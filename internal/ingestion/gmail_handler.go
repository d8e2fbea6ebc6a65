package ingestion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailOptions locates the OAuth files and where attachments are saved
type GmailOptions struct {
	CredentialsPath string
	TokenPath       string
	// Files stores the downloaded attachments
	Files *FileHandler
	// Prompt and Answer drive the one-time browser consent flow
	Prompt io.Writer
	Answer io.Reader
}

// GmailHandler downloads spreadsheet attachments from a Gmail inbox
type GmailHandler struct {
	service *gmail.Service
	files   *FileHandler
}

// NewGmailHandler creates a Gmail handler, running the consent flow when no token is cached
func NewGmailHandler(ctx context.Context, opts GmailOptions) (*GmailHandler, error) {
	if opts.Files == nil {
		return nil, eris.New("gmail: a file handler is required")
	}

	b, err := os.ReadFile(opts.CredentialsPath)
	if err != nil {
		return nil, eris.Wrap(err, "gmail: read credentials file")
	}

	config, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, eris.Wrap(err, "gmail: parse credentials")
	}

	client, err := getClient(ctx, config, opts)
	if err != nil {
		return nil, err
	}
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, eris.Wrap(err, "gmail: create service")
	}

	return &GmailHandler{
		service: srv,
		files:   opts.Files,
	}, nil
}

// getClient retrieves a token, saves it, then returns the generated client
func getClient(ctx context.Context, config *oauth2.Config, opts GmailOptions) (*http.Client, error) {
	tok, err := tokenFromFile(opts.TokenPath)
	if err != nil {
		tok, err = getTokenFromWeb(ctx, config, opts.Prompt, opts.Answer)
		if err != nil {
			return nil, err
		}
		if err := saveToken(opts.TokenPath, tok); err != nil {
			return nil, err
		}
	}
	return config.Client(ctx, tok), nil
}

// getTokenFromWeb asks the operator to authorize access and paste the code back
func getTokenFromWeb(ctx context.Context, config *oauth2.Config, prompt io.Writer, answer io.Reader) (*oauth2.Token, error) {
	if prompt == nil || answer == nil {
		return nil, eris.New("gmail: no cached token and no terminal for the consent flow")
	}
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(prompt, "Go to the following link in your browser then type the authorization code: \n%v\n", authURL)

	var authCode string
	if _, err := fmt.Fscan(answer, &authCode); err != nil {
		return nil, eris.Wrap(err, "gmail: read authorization code")
	}

	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, eris.Wrap(err, "gmail: exchange authorization code")
	}
	return tok, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// saveToken saves a token to a file path
func saveToken(path string, token *oauth2.Token) error {
	zap.L().Info("saving gmail token", zap.String("path", path))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return eris.Wrap(err, "gmail: cache oauth token")
	}
	defer f.Close()
	return eris.Wrap(json.NewEncoder(f).Encode(token), "gmail: encode oauth token")
}

// FetchAttachments downloads the spreadsheet attachments of messages with
// the given subject and returns the saved paths.
func (gh *GmailHandler) FetchAttachments(ctx context.Context, subject string) ([]string, error) {
	user := "me"
	r, err := gh.service.Users.Messages.List(user).Q(SearchQuery(subject)).Context(ctx).Do()
	if err != nil {
		return nil, eris.Wrap(err, "gmail: list messages")
	}

	if len(r.Messages) == 0 {
		return nil, eris.Errorf("gmail: no messages found with subject: %s", subject)
	}

	var saved []string
	for _, msg := range r.Messages {
		if err := ctx.Err(); err != nil {
			return saved, err
		}

		message, err := gh.service.Users.Messages.Get(user, msg.Id).Context(ctx).Do()
		if err != nil {
			zap.L().Warn("gmail: get message", zap.String("message_id", msg.Id), zap.Error(err))
			continue
		}

		senderName := extractSenderName(message)

		for _, part := range attachmentParts(message.Payload) {
			if !IsSupported(part.Filename) {
				zap.L().Debug("gmail: skipping attachment", zap.String("filename", part.Filename))
				continue
			}

			attachment, err := gh.service.Users.Messages.Attachments.Get(user, msg.Id, part.Body.AttachmentId).Context(ctx).Do()
			if err != nil {
				zap.L().Warn("gmail: get attachment", zap.String("filename", part.Filename), zap.Error(err))
				continue
			}

			data, err := base64.URLEncoding.DecodeString(attachment.Data)
			if err != nil {
				zap.L().Warn("gmail: decode attachment", zap.String("filename", part.Filename), zap.Error(err))
				continue
			}

			newFilename := attachmentFilename(senderName, part.Filename)
			filePath, err := gh.files.SaveUploadedFile(newFilename, bytes.NewReader(data))
			if err != nil {
				zap.L().Warn("gmail: save attachment", zap.String("filename", newFilename), zap.Error(err))
				continue
			}

			zap.L().Info("gmail: downloaded attachment", zap.String("path", filePath))
			saved = append(saved, filePath)
		}
	}

	return saved, nil
}

// SearchQuery builds the Gmail search for messages with attachments and a subject
func SearchQuery(subject string) string {
	return fmt.Sprintf("subject:%s has:attachment", subject)
}

// attachmentParts walks nested multipart bodies for parts carrying an attachment
func attachmentParts(part *gmail.MessagePart) []*gmail.MessagePart {
	if part == nil {
		return nil
	}
	var out []*gmail.MessagePart
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		out = append(out, part)
	}
	for _, p := range part.Parts {
		out = append(out, attachmentParts(p)...)
	}
	return out
}

// attachmentFilename prefixes the attachment name with the sender so uploads
// from different people do not collide. The sender comes from the From header
// and is reduced to letters, digits, '-' and '_'.
func attachmentFilename(sender, filename string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return -1
	}, sender)
	if clean == "" {
		clean = "Unknown"
	}
	return fmt.Sprintf("%s_%s", clean, filepath.Base(filepath.Clean("/"+filename)))
}

// extractSenderName extracts the sender's name from email headers
func extractSenderName(message *gmail.Message) string {
	if message == nil || message.Payload == nil {
		return "Unknown"
	}
	for _, header := range message.Payload.Headers {
		if header.Name == "From" {
			// Parse "Name <email@example.com>" format
			from := header.Value
			if idx := strings.Index(from, "<"); idx > 0 {
				name := strings.TrimSpace(from[:idx])
				name = strings.Trim(name, `"`)
				name = strings.ReplaceAll(name, " ", "")
				if name != "" {
					return name
				}
			}
			// If no name, use email prefix
			from = strings.TrimPrefix(strings.TrimSpace(from), "<")
			if idx := strings.Index(from, "@"); idx > 0 {
				return from[:idx]
			}
			return "Unknown"
		}
	}
	return "Unknown"
}
