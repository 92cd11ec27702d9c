// Package main Artboard Server API
//
//	@title						Artboard Server API
//	@version					1.0
//	@description				Image generation jobs and generation credits for the Artboard canvas editor.
//
//	@host						localhost:8080
//	@BasePath					/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"
//
//	@tag.name					Generations
//	@tag.description			Start, poll, list and delete image generation jobs
//
//	@tag.name					Credits
//	@tag.description			Credit balance, audit trail, subscription sync and own provider keys
package main
