package s3client

import (
	"text2phenotype.com/genetagger/logger"
	"errors"
	"fmt"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"strings"
	"sync"
)

type EnvironmentConfig struct {
	BucketName  string `envconfig:"MDL_COMN_STORAGE_CONTAINER_NAME" required:"true"`
	T2PEnv      string `envconfig:"T2P_ENV" required:"true"`
	Region      string `envconfig:"MDL_COMN_AWS_REGION_NAME" required:"true"`
	AwsEndpoint string `envconfig:"MDL_COMN_AWS_ENDPOINT_URL" default:""`
	AccessKeyID string `envconfig:"MDL_COMN_AWS_ACCESS_ID" default:""`
	AccessKey   string `envconfig:"MDL_COMN_AWS_ACCESS_KEY" default:""`
}

// Client reads and writes objects of one bucket. A failed transfer
// refreshes the session once and is retried.
type Client struct {
	env EnvironmentConfig

	mu   sync.Mutex
	sess *session.Session
}

var clientLogger = logger.NewLogger("S3Client")
var sdkLogger = logger.NewLogger("S3-SDK")

func New() (*Client, error) {
	var env EnvironmentConfig
	if err := envconfig.Process("", &env); err != nil {
		clientLogger.Err(err).Caller().Msg("Failed to get proper variables from environment")
		return nil, err
	}
	client := Client{env: env}
	if _, err := client.refreshSession(); err != nil {
		return nil, err
	}
	return &client, nil
}

func (client *Client) Upload(data string, key string) error {
	params := &s3manager.UploadInput{
		Bucket: aws.String(client.env.BucketName),
		Key:    aws.String(key),
	}
	return client.withSession(key, func(sess *session.Session, sdkLog zerolog.Logger) error {
		params.Body = strings.NewReader(data)
		uploader := s3manager.NewUploader(sess.Copy(&aws.Config{Logger: getLogger(sdkLog)}))
		_, err := uploader.Upload(params)
		return err
	})
}

func (client *Client) Download(key string) ([]byte, error) {
	params := &s3.GetObjectInput{
		Bucket: aws.String(client.env.BucketName),
		Key:    aws.String(key),
	}
	var data []byte
	err := client.withSession(key, func(sess *session.Session, sdkLog zerolog.Logger) error {
		downloader := s3manager.NewDownloader(sess.Copy(&aws.Config{Logger: getLogger(sdkLog)}))
		buf := aws.NewWriteAtBuffer([]byte{})
		size, err := downloader.Download(buf, params)
		if err != nil {
			return err
		}
		clientLogger.Debug().Str("key", key).Msgf("Downloaded %v bytes", size)
		data = buf.Bytes()
		return nil
	})
	return data, err
}

func (client *Client) Close() {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.sess = nil
	clientLogger.Info().Msg("Closing client")
}

func (client *Client) withSession(key string, transfer func(sess *session.Session, sdkLog zerolog.Logger) error) error {
	sdkLog := sdkLogger.With().
		Str("key", key).
		Str("bucket", client.env.BucketName).Logger()

	client.mu.Lock()
	sess := client.sess
	client.mu.Unlock()
	if sess == nil {
		return errors.New("could not get session")
	}

	err := transfer(sess, sdkLog)
	if err == nil {
		return nil
	}
	clientLogger.Error().Err(err).Str("key", key).Msg("Caught error while using S3 session, trying to refresh it")
	if sess, err = client.refreshSession(); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}
	return transfer(sess, sdkLog)
}

func (client *Client) refreshSession() (*session.Session, error) {
	client.mu.Lock()
	defer client.mu.Unlock()

	sess, err := session.NewSession(client.createEC2Config())
	if err == nil {
		_, err = sts.New(sess).GetCallerIdentity(&sts.GetCallerIdentityInput{})
	}
	if err == nil {
		client.sess = sess
		clientLogger.Info().Msg("S3 session successfully initialized using EC2")
		return sess, nil
	}

	clientLogger.Info().Msg("Could not initialize S3 session using EC2, trying env credentials")
	cfg, err := client.createEnvConfig()
	if err != nil {
		client.sess = nil
		return nil, err
	}
	if sess, err = session.NewSession(cfg); err == nil {
		_, err = sts.New(sess).GetCallerIdentity(&sts.GetCallerIdentityInput{})
	}
	if err != nil {
		client.sess = nil
		clientLogger.Error().Err(err).Msg("Could not initialize S3 session")
		return nil, errors.New("could not initialize S3 session")
	}
	client.sess = sess
	clientLogger.Info().Msg("S3 session successfully initialized using env credentials")
	return sess, nil
}

func (client *Client) createEC2Config() *aws.Config {
	return &aws.Config{
		Region:     aws.String(client.env.Region),
		MaxRetries: aws.Int(4),
		LogLevel:   aws.LogLevel(aws.LogDebug),
	}
}

func (client *Client) createEnvConfig() (*aws.Config, error) {
	creds := credentials.NewStaticCredentials(client.env.AccessKeyID, client.env.AccessKey, "")
	if _, err := creds.Get(); err != nil {
		clientLogger.Error().Err(err).Msg("Error with credentials from environment")
		return nil, err
	}
	cfg := aws.NewConfig().
		WithRegion(client.env.Region).
		WithMaxRetries(4).
		WithCredentials(creds).
		WithLogLevel(aws.LogDebug)

	if client.env.T2PEnv == "dev" && len(client.env.AwsEndpoint) > 0 {
		cfg = cfg.WithEndpoint(client.env.AwsEndpoint).
			WithS3ForcePathStyle(true)
	}
	return cfg, nil
}

type s3Logger struct {
	fdlLogger zerolog.Logger
}

func getLogger(fdlLogger zerolog.Logger) *s3Logger {
	return &s3Logger{
		fdlLogger,
	}
}

func (logger *s3Logger) Log(v ...interface{}) {
	logger.fdlLogger.Debug().Msg(fmt.Sprint(v...))
}
