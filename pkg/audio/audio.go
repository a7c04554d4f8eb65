// Package audio provides the codec utilities and playback scheduling used by
// the voice bridge: conversion between linear PCM16 and normalized float
// samples, the base64 transport codec used on both WebSocket legs, and a
// gapless playback scheduler for synthesized speech chunks.
package audio

import "time"

// DefaultSampleRate is the sample rate negotiated with the realtime providers.
// Both OpenAI Realtime and Gemini Live emit 24 kHz mono PCM16.
const DefaultSampleRate = 24000

// Frame is a single chunk of audio moving through the bridge.
type Frame struct {
	// PCM is little-endian int16 mono audio.
	PCM []byte

	// SampleRate in Hz.
	SampleRate int
}

// Duration returns the playback duration of f at its sample rate.
func (f Frame) Duration() time.Duration {
	return PCM16Duration(f.PCM, f.SampleRate)
}

// PCM16Duration returns the playback duration of a PCM16 mono byte slice at
// the given sample rate. Returns zero for an empty slice or non-positive rate.
func PCM16Duration(pcm []byte, sampleRate int) time.Duration {
	if len(pcm) == 0 || sampleRate <= 0 {
		return 0
	}
	samples := len(pcm) / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
