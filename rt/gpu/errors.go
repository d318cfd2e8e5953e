package gpu

import "errors"

var (
	// ErrNotInitialized is returned when SetScene or Render is called
	// before Initialize, or Render before SetScene.
	ErrNotInitialized = errors.New("gpu: renderer not initialized")

	// ErrHeapExhausted is returned when the scene's summed resource
	// requirements exceed what the device can address in one heap.
	ErrHeapExhausted = errors.New("gpu: scene exceeds device heap capacity")

	// ErrAccelBuild is returned when an acceleration structure build or
	// compaction fails. Fatal for that scene load.
	ErrAccelBuild = errors.New("gpu: acceleration structure build failed")

	// ErrDispatch is returned when a frame's compute submission fails.
	// Fatal for that frame; no retry is attempted.
	ErrDispatch = errors.New("gpu: compute dispatch failed")
)
