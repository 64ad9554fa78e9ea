package worker

import (
	"text2phenotype.com/genetagger/logger"
	"text2phenotype.com/genetagger/pipeline"
	"text2phenotype.com/genetagger/tasks"
	"text2phenotype.com/genetagger/types"
	"encoding/json"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/streadway/amqp"
	"reflect"
	"strings"
	"testing"
)

type mockedClientsConfig struct {
	rmqMockConfig
	redisMockConfig
	s3MockConfig
	pipelineMockConfig
}

type mockedClients struct {
	redis    *redisMock
	rmq      *rmqMock
	s3       *s3Mock
	pipeline *pipelineMock
}

type methodsCalls struct {
	redis    redisMockCalls
	rmq      rmqMockCalls
	s3       s3MockCalls
	pipeline pipelineCall
}

func testConfiguration(t *testing.T, config mockedClientsConfig, expectedCalls methodsCalls) {
	testDelivery(t, config, []byte("{}"), expectedCalls)
}

func testDelivery(t *testing.T, config mockedClientsConfig, body []byte, expectedCalls methodsCalls) {
	worker, mocks := configureWorker(config)
	worker.processMessage(&amqp.Delivery{
		Body: body,
	})
	calls := methodsCalls{
		redis:    mocks.redis.calls,
		rmq:      mocks.rmq.calls,
		s3:       mocks.s3.calls,
		pipeline: mocks.pipeline.calls,
	}
	if !reflect.DeepEqual(calls, expectedCalls) {
		t.Errorf("Got unexpected called methods set.\nExpected:\n%+v\nGot:\n%+v", expectedCalls, calls)
	}
}

func configureWorker(config mockedClientsConfig) (*Worker, *mockedClients) {
	redis := &redisMock{config: config.redisMockConfig}
	s3 := &s3Mock{config: config.s3MockConfig}
	rmq := &rmqMock{config: config.rmqMockConfig}
	pplnMock := getPipelineMock(config.pipelineMockConfig)

	fdlLogger := logger.NewLogger("Test Worker")

	return &Worker{
			config:      Config{3},
			redis:       redis,
			s3:          s3,
			rmq:         rmq,
			fdlLogger:   &fdlLogger,
			ppln:        pplnMock.ppln,
			fingerprint: "00000000000000ff",
		}, &mockedClients{
			redis:    redis,
			rmq:      rmq,
			s3:       s3,
			pipeline: pplnMock,
		}
}

func withStatus(info tasks.ChunkTaskInfo) withValue {
	return withValue{
		returnedValue: tasks.ChunkTask{
			TaskStatuses: tasks.ChunkTaskStatuses{GeneTagger: info},
		},
	}
}

var (
	successfulRun = methodsCalls{
		redis: redisMockCalls{
			getChunkTask: true, getJobTask: true, onTaskStarted: true, onTaskComplete: true,
		},
		rmq:      rmqMockCalls{pingSequencer: true, acknowledgeDelivery: true},
		s3:       s3MockCalls{getProcessedData: true, saveResultsFile: true},
		pipeline: pipelineCall{true},
	}
	failedRun = methodsCalls{
		redis: redisMockCalls{
			getChunkTask: true, getJobTask: true, onTaskStarted: true, onTaskFailedWithError: true,
		},
		rmq:      rmqMockCalls{pingSequencer: true, acknowledgeDelivery: true},
		s3:       s3MockCalls{getProcessedData: true},
		pipeline: pipelineCall{true},
	}
)

func TestWorker(t *testing.T) {
	t.Run("Successful", func(t *testing.T) {
		testConfiguration(t, mockedClientsConfig{}, successfulRun)
	})

	t.Run("Malformed message", func(t *testing.T) {
		testDelivery(t, mockedClientsConfig{}, []byte("not json"), methodsCalls{
			rmq: rmqMockCalls{rejectDelivery: true},
		})
	})

	t.Run("Failed to get Chunk task", func(t *testing.T) {
		testConfiguration(t,
			mockedClientsConfig{redisMockConfig: redisMockConfig{getChunkTask: withValue{fail: true}}},
			methodsCalls{
				redis: redisMockCalls{getChunkTask: true},
				rmq:   rmqMockCalls{rejectDelivery: true},
			})
	})

	t.Run("Failed to get Job task", func(t *testing.T) {
		testConfiguration(t,
			mockedClientsConfig{redisMockConfig: redisMockConfig{getJobTask: withValue{fail: true}}},
			methodsCalls{
				redis: redisMockCalls{getChunkTask: true, getJobTask: true},
				rmq:   rmqMockCalls{rejectDelivery: true},
			})
	})

	for _, status := range []tasks.TaskStatus{
		tasks.TaskStatusCompletedSuccess,
		tasks.TaskStatusCompletedFailure,
		tasks.TaskStatusCanceled,
	} {
		t.Run("Already complete: "+string(status), func(t *testing.T) {
			testConfiguration(t,
				mockedClientsConfig{redisMockConfig: redisMockConfig{
					getChunkTask: withStatus(tasks.ChunkTaskInfo{Status: status}),
				}},
				methodsCalls{
					redis: redisMockCalls{getChunkTask: true},
					rmq:   rmqMockCalls{pingSequencer: true, acknowledgeDelivery: true},
				})
		})
	}

	t.Run("User cancelled", func(t *testing.T) {
		testConfiguration(t,
			mockedClientsConfig{redisMockConfig: redisMockConfig{
				getJobTask: withValue{returnedValue: tasks.JobTask{UserCanceled: true}},
			}},
			methodsCalls{
				redis: redisMockCalls{getChunkTask: true, getJobTask: true, onTaskCancelled: true},
				rmq:   rmqMockCalls{pingSequencer: true, acknowledgeDelivery: true},
			})
	})

	t.Run("Failed to update task in onTaskCancelled", func(t *testing.T) {
		testConfiguration(t,
			mockedClientsConfig{redisMockConfig: redisMockConfig{
				getJobTask:      withValue{returnedValue: tasks.JobTask{UserCanceled: true}},
				onTaskCancelled: failingMethod{fail: true},
			}},
			methodsCalls{
				redis: redisMockCalls{getChunkTask: true, getJobTask: true, onTaskCancelled: true},
				rmq:   rmqMockCalls{rejectDelivery: true},
			})
	})

	t.Run("Exceeded attempts", func(t *testing.T) {
		testConfiguration(t,
			mockedClientsConfig{redisMockConfig: redisMockConfig{
				getChunkTask: withStatus(tasks.ChunkTaskInfo{Attempts: 3}),
			}},
			methodsCalls{
				redis: redisMockCalls{getChunkTask: true, getJobTask: true, onTaskExceededRetries: true},
				rmq:   rmqMockCalls{pingSequencer: true, acknowledgeDelivery: true},
			})
	})

	t.Run("Retry below the limit", func(t *testing.T) {
		testConfiguration(t,
			mockedClientsConfig{redisMockConfig: redisMockConfig{
				getChunkTask: withStatus(tasks.ChunkTaskInfo{Attempts: 2, Status: tasks.TaskStatusFailed}),
			}},
			successfulRun)
	})

	t.Run("Failed to update task in onTaskStarted", func(t *testing.T) {
		testConfiguration(t,
			mockedClientsConfig{redisMockConfig: redisMockConfig{onTaskStarted: failingMethod{fail: true}}},
			methodsCalls{
				redis: redisMockCalls{getChunkTask: true, getJobTask: true, onTaskStarted: true},
				rmq:   rmqMockCalls{rejectDelivery: true},
			})
	})

	t.Run("Failed to load data from S3", func(t *testing.T) {
		expected := failedRun
		expected.pipeline = pipelineCall{}
		testConfiguration(t,
			mockedClientsConfig{s3MockConfig: s3MockConfig{getProcessedData: withValue{fail: true}}},
			expected)
	})

	t.Run("Failed due to pipeline error", func(t *testing.T) {
		testConfiguration(t,
			mockedClientsConfig{pipelineMockConfig: pipelineMockConfig{fail: true}},
			failedRun)
	})

	t.Run("Pipeline closed without result", func(t *testing.T) {
		testConfiguration(t,
			mockedClientsConfig{pipelineMockConfig: pipelineMockConfig{closed: true}},
			failedRun)
	})

	t.Run("Failed to update task in onTaskFailedWithError", func(t *testing.T) {
		expected := failedRun
		expected.rmq = rmqMockCalls{rejectDelivery: true}
		testConfiguration(t,
			mockedClientsConfig{
				pipelineMockConfig: pipelineMockConfig{fail: true},
				redisMockConfig:    redisMockConfig{onTaskFailedWithError: failingMethod{fail: true}},
			},
			expected)
	})

	t.Run("Failed to save result to S3", func(t *testing.T) {
		expected := failedRun
		expected.s3 = s3MockCalls{getProcessedData: true, saveResultsFile: true}
		testConfiguration(t,
			mockedClientsConfig{s3MockConfig: s3MockConfig{saveResultsFile: failingMethod{fail: true}}},
			expected)
	})

	t.Run("Failed to update task in onTaskComplete", func(t *testing.T) {
		expected := successfulRun
		expected.rmq = rmqMockCalls{rejectDelivery: true}
		testConfiguration(t,
			mockedClientsConfig{redisMockConfig: redisMockConfig{onTaskComplete: failingMethod{fail: true}}},
			expected)
	})

	t.Run("Failed to acknowledge delivery", func(t *testing.T) {
		testConfiguration(t,
			mockedClientsConfig{rmqMockConfig: rmqMockConfig{acknowledgeDelivery: failingMethod{fail: true}}},
			successfulRun)
	})

	t.Run("Failed to ping sequencer", func(t *testing.T) {
		expected := successfulRun
		expected.rmq = rmqMockCalls{pingSequencer: true, rejectDelivery: true}
		testConfiguration(t,
			mockedClientsConfig{rmqMockConfig: rmqMockConfig{pingSequencer: failingMethod{fail: true}}},
			expected)
	})
}

func TestWorkerTagsChunkText(t *testing.T) {
	counts := "5 WORDTAG O dog\n3 WORDTAG I-GENE dog\n8 WORDTAG O _RARE_\n2 WORDTAG I-GENE _RARE_\n"
	model, err := pipeline.TrainModel(types.DefaultConfiguration(), strings.NewReader(counts))
	require.NoError(t, err)

	worker, mocks := configureWorker(mockedClientsConfig{
		s3MockConfig: s3MockConfig{getProcessedData: withValue{returnedValue: []byte("dog\n\ncat\n")}},
	})
	worker.ppln = pipeline.GeneTagger(model)

	body, err := json.Marshal(Message{WorkType: "document", RedisKey: "chunk-1"})
	require.NoError(t, err)
	worker.processMessage(&amqp.Delivery{Body: body})

	require.Equal(t, "dog I-GENE\n\ncat O\n", mocks.s3.saved)
	require.Equal(t, "00000000000000ff", mocks.redis.fingerprint)
	require.True(t, mocks.rmq.calls.acknowledgeDelivery)
}

func TestResultsFileKey(t *testing.T) {
	task := &Task{
		redisKey:  "chunk-1",
		chunkTask: &tasks.ChunkTask{DocID: "doc-7"},
	}
	require.Equal(t, "processed/documents/doc-7/chunks/chunk-1/chunk-1.gene_tags.txt", getResultsFileKey(task))
}

func TestSequencerMessage(t *testing.T) {
	b, err := sequencerMessage(Message{WorkType: "document", RedisKey: "chunk-1", Sender: "sequencer", Version: "1"})
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(b, &got))
	expected := Message{WorkType: "document", RedisKey: "chunk-1", Sender: workerName, Version: "1"}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("unexpected sequencer message (-expected +got):\n%s", diff)
	}
}
