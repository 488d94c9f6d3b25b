package awsclients

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_SingleRegionIgnoresRegionArg(t *testing.T) {
	p := &Pool{clients: make(map[Service]map[string]any)}
	p.put(ServiceS3, "us-east-1", &s3.Client{})

	c, err := Get[*s3.Client](p, ServiceS3, "irrelevant-region")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestGet_MultiRegionRequiresMatch(t *testing.T) {
	p := &Pool{clients: make(map[Service]map[string]any)}
	east := &s3.Client{}
	west := &s3.Client{}
	p.put(ServiceS3, "us-east-1", east)
	p.put(ServiceS3, "us-west-2", west)

	_, err := Get[*s3.Client](p, ServiceS3, "eu-west-1")
	assert.Error(t, err)

	c, err := Get[*s3.Client](p, ServiceS3, "us-west-2")
	require.NoError(t, err)
	assert.Same(t, west, c)
}

func TestGet_UnknownServiceErrors(t *testing.T) {
	p := &Pool{clients: make(map[Service]map[string]any)}
	_, err := Get[*s3.Client](p, ServicePolly, "us-east-1")
	assert.Error(t, err)
}

func TestClose_ClearsAcquisitionOrder(t *testing.T) {
	p := &Pool{clients: make(map[Service]map[string]any)}
	p.put(ServiceS3, "us-east-1", &s3.Client{})
	p.Close()
	_, err := Get[*s3.Client](p, ServiceS3, "us-east-1")
	assert.Error(t, err)
}

func TestRegions_ReturnsPooledRegions(t *testing.T) {
	p := &Pool{clients: make(map[Service]map[string]any)}
	p.put(ServiceS3, "us-east-1", &s3.Client{})
	p.put(ServiceS3, "us-west-2", &s3.Client{})
	assert.ElementsMatch(t, []string{"us-east-1", "us-west-2"}, p.Regions(ServiceS3))
}
