// ABOUTME: Media source package for seekable file decoding
// ABOUTME: Provides the Source interface and implementations for WAV, raw PCM, MP3, FLAC, Vorbis and Opus
// Package decode turns media files into timed chunks of 16-bit PCM.
//
// Supports: WAV (8/16/24/32-bit), headerless PCM, MP3, FLAC, Ogg Vorbis, Ogg Opus
//
// Every source reports its native channel count, keeps track of the time of
// the next chunk, and seeks to the nearest sync point at or before a time.
//
// Example:
//
//	src, err := decode.Open("track.flac", true, decode.DefaultRawFormat)
//	for {
//	    chunk, err := src.ReadChunk()
//	    if err == io.EOF {
//	        break
//	    }
//	    // chunk.Samples are interleaved int16 at chunk.TimeUs
//	}
package decode
