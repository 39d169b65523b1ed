package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"

	"github.com/synapsenet/miner/internal/minerlog"
)

// HostedLLMEngine launches a container through the local Docker daemon
// with GPU runtime, port binding, and an HF_ID env var identifying the
// Hugging Face model to serve (spec §4.4 "Hosted-LLM container").
type HostedLLMEngine struct {
	image       string
	hfModelID   string
	hostPort    string
	containerIP string

	docker      *dockerclient.Client
	containerID string

	log minerlog.Logger
}

// NewHostedLLMEngine builds an adapter that will launch image with
// HF_ID=hfModelID, exposing the container's inference port on hostPort.
func NewHostedLLMEngine(image, hfModelID, hostPort string) (*HostedLLMEngine, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "build docker client")
	}
	return &HostedLLMEngine{
		image:     image,
		hfModelID: hfModelID,
		hostPort:  hostPort,
		docker:    cli,
		log:       minerlog.Module("engine.hostedllm").With("hf_id", hfModelID),
	}, nil
}

func (e *HostedLLMEngine) Setup(ctx context.Context) error {
	reader, err := e.docker.ImagePull(ctx, e.image, types.ImagePullOptions{})
	if err != nil {
		return errors.Wrap(err, "pull image")
	}
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return errors.Wrap(err, "drain image pull stream")
	}
	reader.Close()

	containerPort, err := nat.NewPort("tcp", "8000")
	if err != nil {
		return errors.Wrap(err, "build container port spec")
	}

	resp, err := e.docker.ContainerCreate(ctx,
		&container.Config{
			Image:        e.image,
			Env:          []string{fmt.Sprintf("HF_ID=%s", e.hfModelID)},
			ExposedPorts: nat.PortSet{containerPort: struct{}{}},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				containerPort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: e.hostPort}},
			},
			Resources: container.Resources{
				DeviceRequests: []container.DeviceRequest{
					{Count: -1, Capabilities: [][]string{{"gpu"}}},
				},
			},
		},
		nil, nil, "",
	)
	if err != nil {
		return errors.Wrap(err, "create container")
	}
	e.containerID = resp.ID

	if err := e.docker.ContainerStart(ctx, e.containerID, types.ContainerStartOptions{}); err != nil {
		return errors.Wrap(err, "start container")
	}

	inspect, err := e.docker.ContainerInspect(ctx, e.containerID)
	if err != nil {
		return errors.Wrap(err, "inspect container")
	}
	e.containerIP = inspect.NetworkSettings.IPAddress

	e.log.Info("hosted llm container started", "container_id", e.containerID)
	return nil
}

type chatRequest struct {
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	MaxNewTokens int    `json:"max_new_tokens"`
}

func (e *HostedLLMEngine) Run(ctx context.Context, reqs <-chan Request, respond Responder, shutdown <-chan struct{}) error {
	for {
		select {
		case <-shutdown:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-reqs:
			if !ok {
				return nil
			}
			reply, err := e.forwardChat(ctx, req.Payload)
			if err != nil {
				reply = errorFrame(err)
			}
			if err := respond(reply); err != nil {
				return err
			}
		}
	}
}

func (e *HostedLLMEngine) forwardChat(ctx context.Context, payload []byte) ([]byte, error) {
	var incoming chatRequest
	if err := json.Unmarshal(payload, &incoming); err != nil {
		return nil, errors.Wrap(err, "malformed chat request")
	}
	body, err := json.Marshal(incoming)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("http://%s:8000/chat", e.containerIP)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "forward chat request")
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, errors.Errorf("hosted llm container returned status %d", resp.StatusCode)
	}
	return buf.Bytes(), nil
}

func (e *HostedLLMEngine) KillEngine(ctx context.Context, taskDir string) error {
	if e.containerID != "" {
		if err := e.docker.ContainerRemove(ctx, e.containerID, types.ContainerRemoveOptions{Force: true}); err != nil {
			return errors.Wrap(err, "force-remove container")
		}
		e.log.Info("hosted llm container removed", "container_id", e.containerID)
	}
	return nil
}
