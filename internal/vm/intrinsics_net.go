package vm

import (
	"context"
	"time"

	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/dynamic/grpcdynamic"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// registerSysNet wires the one network intrinsic the sandboxed language
// needs: a unary gRPC invocation resolved through server reflection, with
// the request built dynamically from a JSON payload.
func registerSysNet(r *Registry) {
	r.Register(&Intrinsic{Name: "sys.net.grpcCall", Arity: 4, Requires: []Capability{CapNet},
		Handler: grpcCall})
}

func grpcCall(rt *Runtime, args []Value) (Value, error) {
	target, ok := args[0].AsString()
	if !ok {
		return Value{}, typeMismatch("sys.net.grpcCall target must be a string, got %s", args[0].TypeName())
	}
	service, ok := args[1].AsString()
	if !ok {
		return Value{}, typeMismatch("sys.net.grpcCall service must be a string, got %s", args[1].TypeName())
	}
	method, ok := args[2].AsString()
	if !ok {
		return Value{}, typeMismatch("sys.net.grpcCall method must be a string, got %s", args[2].TypeName())
	}
	payload, ok := args[3].AsString()
	if !ok {
		return Value{}, typeMismatch("sys.net.grpcCall payload must be a JSON string, got %s", args[3].TypeName())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return Value{}, failf("sys.net.grpcCall", "connect %s: %v", target, err)
	}
	id := rt.Tracker.Register("grpc-conn", conn.Close)
	defer func() { _ = rt.Tracker.Release(id) }()

	refClient := grpcreflect.NewClientAuto(ctx, conn)
	defer refClient.Reset()

	svcDesc, err := refClient.ResolveService(service)
	if err != nil {
		return Value{}, failf("sys.net.grpcCall", "resolve service %s: %v", service, err)
	}
	mDesc := svcDesc.FindMethodByName(method)
	if mDesc == nil {
		return Value{}, failf("sys.net.grpcCall", "service %s has no method %s", service, method)
	}
	if mDesc.IsClientStreaming() || mDesc.IsServerStreaming() {
		return Value{}, failf("sys.net.grpcCall", "method %s is streaming; only unary calls are supported", method)
	}

	req := dynamic.NewMessage(mDesc.GetInputType())
	if err := req.UnmarshalJSON([]byte(payload)); err != nil {
		return Value{}, failf("sys.net.grpcCall", "bad request payload: %v", err)
	}

	stub := grpcdynamic.NewStub(conn)
	resp, err := stub.InvokeRpc(ctx, mDesc, req)
	if err != nil {
		return Value{}, failf("sys.net.grpcCall", "invoke %s/%s: %v", service, method, err)
	}

	dyn, err := dynamic.AsDynamicMessage(resp)
	if err != nil {
		return Value{}, failf("sys.net.grpcCall", "decode response: %v", err)
	}
	out, err := dyn.MarshalJSON()
	if err != nil {
		return Value{}, failf("sys.net.grpcCall", "encode response: %v", err)
	}
	return StringVal(string(out)), nil
}
