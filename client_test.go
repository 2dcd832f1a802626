package connectcore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func writeEnvelope(w io.Writer, flags byte, payload []byte) {
	var header [5]byte
	header[0] = flags
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	_, _ = w.Write(header[:])
	_, _ = w.Write(payload)
}

func TestUnarySuccessRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req wrapperspb.StringValue
		require.NoError(t, proto.Unmarshal(body, &req))
		assert.Equal(t, "ping", req.Value)

		resp, err := proto.Marshal(&wrapperspb.StringValue{Value: "pong"})
		require.NoError(t, err)
		w.Header().Set("Trailer-X-Served-By", "test-server")
		w.Header().Set("Content-Type", "application/proto")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp)
	}))
	defer srv.Close()

	conn := NewConnection(srv.URL)
	resp, err := Unary[wrapperspb.StringValue, wrapperspb.StringValue](
		context.Background(), conn, "/test.Service/Echo", &wrapperspb.StringValue{Value: "ping"})
	require.NoError(t, err)
	if diff := cmp.Diff(&wrapperspb.StringValue{Value: "pong"}, resp.Msg, protocmp.Transform()); diff != "" {
		t.Errorf("response message mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "test-server", resp.Trailer().Get("X-Served-By"))
}

func TestUnaryErrorRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    "not_found",
			"message": "widget missing",
		})
	}))
	defer srv.Close()

	conn := NewConnection(srv.URL)
	_, err := Unary[wrapperspb.StringValue, wrapperspb.StringValue](
		context.Background(), conn, "/test.Service/Echo", &wrapperspb.StringValue{Value: "ping"})
	require.Error(t, err)

	connErr, ok := asError(err)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, connErr.Code())
	assert.Equal(t, "widget missing", connErr.Message())
}

func TestUnaryNonConnectErrorFallsBackToStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	conn := NewConnection(srv.URL)
	_, err := Unary[wrapperspb.StringValue, wrapperspb.StringValue](
		context.Background(), conn, "/test.Service/Echo", &wrapperspb.StringValue{Value: "ping"})
	require.Error(t, err)

	connErr, ok := asError(err)
	require.True(t, ok)
	assert.Equal(t, CodePermissionDenied, connErr.Code())
}

func TestServerStreamDeliversMessagesThenEndStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/connect+proto")
		w.WriteHeader(http.StatusOK)

		for _, v := range []string{"one", "two", "three"} {
			payload, err := proto.Marshal(&wrapperspb.StringValue{Value: v})
			require.NoError(t, err)
			writeEnvelope(w, 0, payload)
		}
		end, err := json.Marshal(endStreamResponse{Metadata: map[string][]string{"X-Total": {"3"}}})
		require.NoError(t, err)
		writeEnvelope(w, 0x02, end)
	}))
	defer srv.Close()

	conn := NewConnection(srv.URL)
	stream, err := ServerStream[wrapperspb.StringValue, wrapperspb.StringValue](
		context.Background(), conn, "/test.Service/List", &wrapperspb.StringValue{Value: "req"})
	require.NoError(t, err)
	defer stream.Close()

	var got []string
	for stream.Receive() {
		got = append(got, stream.Msg().Value)
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []string{"one", "two", "three"}, got)
	assert.Equal(t, "3", stream.Trailer().Get("X-Total"))
}

func TestServerStreamMissingEndStreamIsInvalidArgument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/connect+proto")
		w.WriteHeader(http.StatusOK)
		payload, err := proto.Marshal(&wrapperspb.StringValue{Value: "one"})
		require.NoError(t, err)
		writeEnvelope(w, 0, payload)
		// No end-stream envelope: the body just ends.
	}))
	defer srv.Close()

	conn := NewConnection(srv.URL)
	stream, err := ServerStream[wrapperspb.StringValue, wrapperspb.StringValue](
		context.Background(), conn, "/test.Service/List", &wrapperspb.StringValue{Value: "req"})
	require.NoError(t, err)
	defer stream.Close()

	assert.True(t, stream.Receive())
	assert.Equal(t, "one", stream.Msg().Value)
	assert.False(t, stream.Receive())

	require.Error(t, stream.Err())
	connErr, ok := asError(stream.Err())
	require.True(t, ok)
	assert.Equal(t, CodeInvalidArgument, connErr.Code())
}

func TestServerStreamRejectsCompressedFrameUnderIdentityEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/connect+proto")
		w.WriteHeader(http.StatusOK)
		writeEnvelope(w, 0x01, []byte("not actually compressed"))
		end, err := json.Marshal(endStreamResponse{})
		require.NoError(t, err)
		writeEnvelope(w, 0x02, end)
	}))
	defer srv.Close()

	conn := NewConnection(srv.URL)
	stream, err := ServerStream[wrapperspb.StringValue, wrapperspb.StringValue](
		context.Background(), conn, "/test.Service/List", &wrapperspb.StringValue{Value: "req"})
	require.NoError(t, err)
	defer stream.Close()

	assert.False(t, stream.Receive())
	require.Error(t, stream.Err())
	connErr, ok := asError(stream.Err())
	require.True(t, ok)
	assert.Equal(t, CodeInvalidArgument, connErr.Code())
}

func TestServerStreamSurfacesEndStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/connect+proto")
		w.WriteHeader(http.StatusOK)
		end, err := json.Marshal(endStreamResponse{Error: newErrorPayload(NewError(CodeAborted, "list interrupted"))})
		require.NoError(t, err)
		writeEnvelope(w, 0x02, end)
	}))
	defer srv.Close()

	conn := NewConnection(srv.URL)
	stream, err := ServerStream[wrapperspb.StringValue, wrapperspb.StringValue](
		context.Background(), conn, "/test.Service/List", &wrapperspb.StringValue{Value: "req"})
	require.NoError(t, err)
	defer stream.Close()

	assert.False(t, stream.Receive())
	require.Error(t, stream.Err())
	connErr, ok := asError(stream.Err())
	require.True(t, ok)
	assert.Equal(t, CodeAborted, connErr.Code())
}

func TestClientStreamSingleResponseMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var count int
		buf := make([]byte, 5)
		for {
			if _, err := io.ReadFull(r.Body, buf); err != nil {
				break
			}
			length := binary.BigEndian.Uint32(buf[1:])
			payload := make([]byte, length)
			_, _ = io.ReadFull(r.Body, payload)
			count++
		}

		w.Header().Set("Content-Type", "application/connect+proto")
		w.WriteHeader(http.StatusOK)
		sum, err := proto.Marshal(&wrapperspb.StringValue{Value: "received"})
		require.NoError(t, err)
		writeEnvelope(w, 0, sum)
		end, err := json.Marshal(endStreamResponse{})
		require.NoError(t, err)
		writeEnvelope(w, 0x02, end)
		assert.Equal(t, 2, count)
	}))
	defer srv.Close()

	conn := NewConnection(srv.URL)
	cs := CallClientStream[wrapperspb.StringValue, wrapperspb.StringValue](context.Background(), conn, "/test.Service/Sum")
	require.NoError(t, cs.Send(&wrapperspb.StringValue{Value: "a"}))
	require.NoError(t, cs.Send(&wrapperspb.StringValue{Value: "b"}))

	out := cs.CloseAndReceive()
	require.NoError(t, out.Err())
	assert.Equal(t, "received", out.Msg().Value)
}

func TestClientStreamMissingEndStreamAfterMessageIsInvalidArgument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/connect+proto")
		w.WriteHeader(http.StatusOK)
		sum, err := proto.Marshal(&wrapperspb.StringValue{Value: "received"})
		require.NoError(t, err)
		writeEnvelope(w, 0, sum)
		// No end-stream envelope: the body just ends.
	}))
	defer srv.Close()

	conn := NewConnection(srv.URL)
	cs := CallClientStream[wrapperspb.StringValue, wrapperspb.StringValue](context.Background(), conn, "/test.Service/Sum")
	require.NoError(t, cs.Send(&wrapperspb.StringValue{Value: "a"}))

	out := cs.CloseAndReceive()
	require.Error(t, out.Err())
	connErr, ok := asError(out.Err())
	require.True(t, ok)
	assert.Equal(t, CodeInvalidArgument, connErr.Code())
}
