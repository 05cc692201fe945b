// Package errors provides error codes for tmplhub
package errors

// ErrorCode represents a tmplhub error code
type ErrorCode string

// Configuration error codes
const (
	// CodeInvalidConfig indicates invalid configuration
	CodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// CodeEngineMissing indicates no plugin is installed for the requested engine
	CodeEngineMissing ErrorCode = "ENGINE_MISSING"

	// CodeEngineNotConfigured indicates the engine was never prepared
	CodeEngineNotConfigured ErrorCode = "ENGINE_NOT_CONFIGURED"

	// CodeCacheNotConfigured indicates a cache directive without a usable cache
	CodeCacheNotConfigured ErrorCode = "CACHE_NOT_CONFIGURED"

	// CodeInvalidCacheType indicates an unknown cache backend identifier
	CodeInvalidCacheType ErrorCode = "INVALID_CACHE_TYPE"

	// CodeInvalidCacheExpire indicates an unparseable cache expiry
	CodeInvalidCacheExpire ErrorCode = "INVALID_CACHE_EXPIRE"
)

// Render error codes
const (
	// CodeNamespaceRequired indicates context was excluded without a namespace
	CodeNamespaceRequired ErrorCode = "NAMESPACE_REQUIRED"

	// CodeContextUnavailable indicates request-scoped state is missing
	CodeContextUnavailable ErrorCode = "CONTEXT_UNAVAILABLE"

	// CodeTemplateNotFound indicates a template could not be located
	CodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"

	// CodeRenderFailed indicates a template failed to parse or execute
	CodeRenderFailed ErrorCode = "RENDER_FAILED"
)

// Plugin error codes
const (
	// CodePluginLoadFailed indicates an engine plugin failed to load
	CodePluginLoadFailed ErrorCode = "PLUGIN_LOAD_FAILED"

	// CodeDependencyNotFound indicates a plugin's underlying library is absent
	CodeDependencyNotFound ErrorCode = "DEPENDENCY_NOT_FOUND"
)

// ErrorCodeInfo provides information about an error code
type ErrorCodeInfo struct {
	Code        ErrorCode `json:"code"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	UserFacing  bool      `json:"user_facing"`
}

// GetErrorCodeInfo returns information about an error code
func GetErrorCodeInfo(code ErrorCode) ErrorCodeInfo {
	info, exists := errorCodeInfoMap[code]
	if !exists {
		return ErrorCodeInfo{
			Code:        code,
			Category:    "unknown",
			Description: "Unknown error code",
		}
	}
	return info
}

// GetCategory returns the category of an error code
func GetCategory(code ErrorCode) string {
	return GetErrorCodeInfo(code).Category
}

var errorCodeInfoMap = map[ErrorCode]ErrorCodeInfo{
	CodeInvalidConfig: {
		Code: CodeInvalidConfig, Category: "configuration", Description: "Invalid configuration provided",
		UserFacing: true,
	},
	CodeEngineMissing: {
		Code: CodeEngineMissing, Category: "configuration", Description: "No plugin installed for template engine",
		UserFacing: true,
	},
	CodeEngineNotConfigured: {
		Code: CodeEngineNotConfigured, Category: "configuration", Description: "Template engine was not prepared",
		UserFacing: true,
	},
	CodeCacheNotConfigured: {
		Code: CodeCacheNotConfigured, Category: "configuration", Description: "Render cache is not configured",
		UserFacing: true,
	},
	CodeInvalidCacheType: {
		Code: CodeInvalidCacheType, Category: "cache", Description: "Unknown cache backend type",
		UserFacing: true,
	},
	CodeInvalidCacheExpire: {
		Code: CodeInvalidCacheExpire, Category: "cache", Description: "Invalid cache expiry",
		UserFacing: true,
	},
	CodeNamespaceRequired: {
		Code: CodeNamespaceRequired, Category: "render", Description: "Namespace required when context is excluded",
		UserFacing: true,
	},
	CodeContextUnavailable: {
		Code: CodeContextUnavailable, Category: "render", Description: "Request-scoped template state is unavailable",
	},
	CodeTemplateNotFound: {
		Code: CodeTemplateNotFound, Category: "render", Description: "Template not found",
		UserFacing: true,
	},
	CodeRenderFailed: {
		Code: CodeRenderFailed, Category: "render", Description: "Template failed to parse or execute",
	},
	CodePluginLoadFailed: {
		Code: CodePluginLoadFailed, Category: "plugin", Description: "Template engine plugin failed to load",
	},
	CodeDependencyNotFound: {
		Code: CodeDependencyNotFound, Category: "plugin", Description: "Template engine dependency not installed",
	},
}
