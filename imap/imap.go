package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/msg-to-imap/model"
	"github.com/dhcgn/msg-to-imap/runner"
	"github.com/dhcgn/msg-to-imap/state"
	"github.com/dhcgn/msg-to-imap/stats"
)

var (
	ErrHostEmpty   = errors.New("imap host is empty")
	ErrInvalidPort = errors.New("imap port must be positive")
	ErrHashMissing = errors.New("message hash is empty")
)

const defaultFolder = "INBOX"

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	DryRun             bool
	// SkipExisting searches the target folder for the Message-Id before
	// each append.
	SkipExisting bool
}

type Uploader struct {
	opts       Options
	runner     *runner.Runner
	tracker    state.Tracker
	deliveries <-chan model.Message
	logger     *slog.Logger
}

func NewUploader(opts Options, r *runner.Runner, logger *slog.Logger) (*Uploader, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	tracker := r.Tracker()
	if tracker == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	uploader := &Uploader{
		opts:       opts,
		runner:     r,
		tracker:    tracker,
		deliveries: r.Deliveries(),
		logger:     logger,
	}
	r.AddStage("imap", uploader.run)
	return uploader, nil
}

func (o Options) validate() error {
	if o.Host == "" {
		return ErrHostEmpty
	}
	if o.Port <= 0 {
		return ErrInvalidPort
	}
	return nil
}

func (o Options) targetFolder() string {
	if o.TargetFolder == "" {
		return defaultFolder
	}
	return o.TargetFolder
}

func (o Options) address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

func (u *Uploader) emit(typ stats.EventType, msg model.Message, err error) {
	u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: typ, MessageID: msg.ID, Source: msg.Source, Err: err})
}

func (u *Uploader) run(ctx context.Context) error {
	var (
		client  *imapclient.Client
		cleanup func()
	)
	defer func() {
		if cleanup != nil {
			cleanup()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-u.deliveries:
			if !ok {
				return nil
			}
			if msg.Hash == "" {
				err := fmt.Errorf("%s: %w", msg.Source, ErrHashMissing)
				u.emit(stats.EventTypeError, msg, err)
				return err
			}

			if u.opts.DryRun {
				if err := u.tracker.MarkProcessed(msg.Hash, msg.Source); err != nil {
					u.emit(stats.EventTypeError, msg, err)
					return err
				}
				u.emit(stats.EventTypeDryRunUpload, msg, nil)
				if u.logger != nil {
					u.logger.Debug("dry-run upload", "messageID", msg.ID, "source", msg.Source, "target", u.opts.targetFolder())
				}
				continue
			}

			if client == nil {
				var err error
				client, cleanup, err = u.dial(ctx)
				if err != nil {
					u.emit(stats.EventTypeError, msg, err)
					return err
				}
			}

			if u.opts.SkipExisting {
				exists, err := u.exists(client, msg.ID)
				if err != nil {
					u.emit(stats.EventTypeError, msg, err)
					return err
				}
				if exists {
					if err := u.tracker.MarkProcessed(msg.Hash, msg.Source); err != nil {
						u.emit(stats.EventTypeError, msg, err)
						return err
					}
					u.emit(stats.EventTypeDuplicate, msg, nil)
					if u.logger != nil {
						u.logger.Debug("message already in mailbox", "messageID", msg.ID, "source", msg.Source)
					}
					continue
				}
			}

			if err := u.appendMessage(client, msg); err != nil {
				err = fmt.Errorf("upload %s: %w", msg.Source, err)
				u.emit(stats.EventTypeError, msg, err)
				return err
			}

			if err := u.tracker.MarkProcessed(msg.Hash, msg.Source); err != nil {
				u.emit(stats.EventTypeError, msg, err)
				return err
			}

			u.emit(stats.EventTypeUploaded, msg, nil)
			if u.logger != nil {
				u.logger.Debug("uploaded message", "messageID", msg.ID, "source", msg.Source, "target", u.opts.targetFolder())
			}
		}
	}
}

func (u *Uploader) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := u.opts.address()
	options := &imapclient.Options{}

	var (
		client *imapclient.Client
		err    error
	)
	if u.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         u.opts.Host,
			InsecureSkipVerify: u.opts.InsecureSkipVerify,
		}
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(u.opts.Username, u.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if err := u.ensureMailbox(client); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	target := u.opts.targetFolder()
	selected, err := client.Select(target, nil).Wait()
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("select mailbox %s: %w", target, err)
	}

	if u.logger != nil {
		u.logger.Debug("imap connection established", "address", address, "user", u.opts.Username, "target", target, "tls", u.opts.UseTLS, "messages", selected.NumMessages)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil && u.logger != nil {
				u.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil && u.logger != nil {
			u.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}

// exists reports whether the selected mailbox holds a message with the
// given Message-Id header.
func (u *Uploader) exists(client *imapclient.Client, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	criteria := &imapv2.SearchCriteria{
		Header: []imapv2.SearchCriteriaHeaderField{{Key: "Message-Id", Value: messageID}},
	}
	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return false, fmt.Errorf("search message id %s: %w", messageID, err)
	}
	return len(data.AllUIDs()) > 0, nil
}

func (u *Uploader) appendMessage(client *imapclient.Client, msg model.Message) error {
	var opts *imapv2.AppendOptions
	if !msg.ReceivedAt.IsZero() {
		opts = &imapv2.AppendOptions{Time: msg.ReceivedAt}
	}

	cmd := client.Append(u.opts.targetFolder(), int64(len(msg.Raw)), opts)

	remaining := msg.Raw
	for len(remaining) > 0 {
		n, err := cmd.Write(remaining)
		if err != nil {
			_ = cmd.Close()
			return fmt.Errorf("append write: %w", err)
		}
		if n == 0 {
			_ = cmd.Close()
			return fmt.Errorf("append write: wrote 0 bytes")
		}
		remaining = remaining[n:]
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}
	return nil
}

func (u *Uploader) ensureMailbox(client *imapclient.Client) error {
	target := u.opts.targetFolder()
	if err := client.Create(target, nil).Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) && respErr.Code == imapv2.ResponseCodeAlreadyExists {
			if u.logger != nil {
				u.logger.Debug("imap mailbox already exists", "mailbox", target)
			}
			return nil
		}
		return fmt.Errorf("ensure mailbox %s: %w", target, err)
	}

	if u.logger != nil {
		u.logger.Info("imap mailbox created", "mailbox", target)
	}
	return nil
}
