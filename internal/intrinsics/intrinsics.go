// Package intrinsics declares the built-in federated operators and their
// generic type signatures. The registry is a static table built at init;
// lookup never reflects.
package intrinsics

import "github.com/hanpama/fedtree/internal/types"

// Operator URIs.
const (
	FederatedAggregate      = "federated_aggregate"
	FederatedApply          = "federated_apply"
	FederatedBroadcast      = "federated_broadcast"
	FederatedEvalAtClients  = "federated_eval_at_clients"
	FederatedEvalAtServer   = "federated_eval_at_server"
	FederatedMap            = "federated_map"
	FederatedMapAllEqual    = "federated_map_all_equal"
	FederatedMean           = "federated_mean"
	FederatedSecureSum      = "federated_secure_sum"
	FederatedSum            = "federated_sum"
	FederatedValueAtClients = "federated_value_at_clients"
	FederatedValueAtServer  = "federated_value_at_server"
	FederatedWeightedMean   = "federated_weighted_mean"
	FederatedZipAtClients   = "federated_zip_at_clients"
	FederatedZipAtServer    = "federated_zip_at_server"
)

// Def describes one operator: its URI and generic type signature. Abstract
// labels (T, U, ...) in the signature bind to concrete types per use.
type Def struct {
	URI           string
	TypeSignature types.FunctionType
}

var (
	tT = types.AbstractType{Label: "T"}
	tU = types.AbstractType{Label: "U"}
	tR = types.AbstractType{Label: "R"}
	tW = types.AbstractType{Label: "W"}
)

var defs = []*Def{
	{
		URI: FederatedAggregate,
		TypeSignature: types.Function(
			types.Tuple(
				types.AtClients(tT),
				tU,
				types.Function(types.Tuple(tU, tT), tU),
				types.Function(types.Tuple(tU, tU), tU),
				types.Function(tU, tR),
			),
			types.AtServer(tR)),
	},
	{
		URI: FederatedApply,
		TypeSignature: types.Function(
			types.Tuple(types.Function(tT, tU), types.AtServer(tT)),
			types.AtServer(tU)),
	},
	{
		URI: FederatedBroadcast,
		TypeSignature: types.Function(
			types.AtServer(tT), types.AtClientsAllEqual(tT)),
	},
	{
		URI: FederatedEvalAtClients,
		TypeSignature: types.Function(
			types.Function(nil, tT), types.AtClients(tT)),
	},
	{
		URI: FederatedEvalAtServer,
		TypeSignature: types.Function(
			types.Function(nil, tT), types.AtServer(tT)),
	},
	{
		URI: FederatedMap,
		TypeSignature: types.Function(
			types.Tuple(types.Function(tT, tU), types.AtClients(tT)),
			types.AtClients(tU)),
	},
	{
		URI: FederatedMapAllEqual,
		TypeSignature: types.Function(
			types.Tuple(types.Function(tT, tU), types.AtClientsAllEqual(tT)),
			types.AtClientsAllEqual(tU)),
	},
	{
		URI: FederatedMean,
		TypeSignature: types.Function(
			types.AtClients(tT), types.AtServer(tT)),
	},
	{
		URI: FederatedSecureSum,
		TypeSignature: types.Function(
			types.Tuple(types.AtClients(tT), tU), types.AtServer(tT)),
	},
	{
		URI: FederatedSum,
		TypeSignature: types.Function(
			types.AtClients(tT), types.AtServer(tT)),
	},
	{
		URI: FederatedValueAtClients,
		TypeSignature: types.Function(tT, types.AtClientsAllEqual(tT)),
	},
	{
		URI: FederatedValueAtServer,
		TypeSignature: types.Function(tT, types.AtServer(tT)),
	},
	{
		URI: FederatedWeightedMean,
		TypeSignature: types.Function(
			types.Tuple(types.AtClients(tT), types.AtClients(tW)),
			types.AtServer(tT)),
	},
	{
		URI: FederatedZipAtClients,
		TypeSignature: types.Function(
			types.Tuple(types.AtClients(tT), types.AtClients(tU)),
			types.AtClients(types.Tuple(tT, tU))),
	},
	{
		URI: FederatedZipAtServer,
		TypeSignature: types.Function(
			types.Tuple(types.AtServer(tT), types.AtServer(tU)),
			types.AtServer(types.Tuple(tT, tU))),
	},
}

var byURI = func() map[string]*Def {
	m := make(map[string]*Def, len(defs))
	for _, d := range defs {
		m[d.URI] = d
	}
	return m
}()

// ByURI returns the operator definition for uri, or nil if unknown.
func ByURI(uri string) *Def { return byURI[uri] }
