// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

// Listener is the config file schema of a switchboard listener.
//
// Engine toggles are pointers so an unset value keeps the listener
// default rather than disabling the engine.
type Listener struct {
	Listen     []string   `config:"listen"`
	HTTP       *bool      `config:"http"`
	HTTPS      *bool      `config:"https"`
	HTTP2      *bool      `config:"http2"`
	AllowHTTP1 *bool      `config:"allowHTTP1"`
	TLS        TLS        `config:"tls"`
	Contexts   []Context  `config:"contexts"`
	Kubernetes Kubernetes `config:"kubernetes"`
	Tracing    Tracing    `config:"tracing"`
	Env        string     `config:"env"`
}

// TLS names the default certificate served to clients which do not
// send a server name.
type TLS struct {
	CertFile string `config:"certFile"`
	KeyFile  string `config:"keyFile"`
	CAFile   string `config:"caFile"`
}

// Context is a per hostname TLS identity.
type Context struct {
	Hostname string `config:"hostname"`
	CertFile string `config:"certFile"`
	KeyFile  string `config:"keyFile"`
	CAFile   string `config:"caFile"`
}

// Kubernetes enables sourcing TLS identities from kubernetes.io/tls
// secrets. It is disabled while LabelSelector is empty.
type Kubernetes struct {
	Kubeconfig    string `config:"kubeconfig"`
	Namespace     string `config:"namespace"`
	LabelSelector string `config:"labelSelector"`
	Watch         bool   `config:"watch"`
}

// Enabled reports whether a label selector was configured.
func (k Kubernetes) Enabled() bool {
	return k.LabelSelector != ""
}

// Tracing selects where dispatch spans are exported. Exporter is one
// of "none", "stdout" or "otlp".
type Tracing struct {
	Exporter    string `config:"exporter"`
	ServiceName string `config:"serviceName"`
	Target      string `config:"target"`
}
