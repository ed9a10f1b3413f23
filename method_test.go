package asyncgrpc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estuary/asyncgrpc"
	"github.com/estuary/asyncgrpc/mathpb"
)

func TestParseMethodFullName(t *testing.T) {
	var service, method, err = asyncgrpc.ParseMethodFullName("/asyncgrpc.math.Math/GetSquare")
	require.NoError(t, err)
	require.Equal(t, "asyncgrpc.math.Math", service)
	require.Equal(t, "GetSquare", method)

	var cases = []string{
		"",
		"asyncgrpc.math.Math/GetSquare", // No leading slash.
		"/asyncgrpc.math.Math",          // No method component.
		"/asyncgrpc.math.Math/",         // Empty method.
		"//GetSquare",                   // Empty service.
		"/a/b/c",                        // Too many components.
	}
	for _, name := range cases {
		var _, _, err = asyncgrpc.ParseMethodFullName(name)
		require.Error(t, err, "name %q", name)
	}
}

func TestMethodNames(t *testing.T) {
	var method = mathpb.GetSequenceMethod()
	require.Equal(t, "asyncgrpc.math.Math", method.ServiceName())
	require.Equal(t, "GetSequence", method.ShortName())
	require.Equal(t, asyncgrpc.ServerStream, method.Type)
}

func TestBuilderRejectsBadRegistrations(t *testing.T) {
	var builder = asyncgrpc.NewServerBuilder()

	// A method without a handler factory cannot serve.
	require.Error(t, builder.Register(mathpb.GetSquareMethod()))

	var method = mathpb.GetSquareMethod().WithHandler(func() asyncgrpc.Handler {
		return new(getSquareHandler)
	})
	require.NoError(t, builder.Register(method))
	// Double registration of the same method.
	require.Error(t, builder.Register(method))

	// Malformed full name.
	var bad = method
	bad.FullName = "not-a-method"
	require.Error(t, builder.Register(bad))
}
