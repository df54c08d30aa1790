/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package audio

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

const wavBitDepth = 16

// EncodeWAV writes mono 16-bit samples to a timestamped file under dir and
// returns its path and bytes
func EncodeWAV(fs afero.Fs, dir, prefix string, samples []int16, sampleRate int) (string, []byte, error) {
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return "", nil, fmt.Errorf("failed to create audio directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.wav", prefix, time.Now().Format("20060102_150405.000"))
	path := filepath.Join(dir, name)

	if err := writeWAV(fs, path, samples, sampleRate); err != nil {
		return "", nil, err
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read back %s: %w", path, err)
	}
	return path, data, nil
}

// WAVBytes encodes samples entirely in memory
func WAVBytes(samples []int16, sampleRate int) ([]byte, error) {
	fs := afero.NewMemMapFs()
	if err := writeWAV(fs, "clip.wav", samples, sampleRate); err != nil {
		return nil, err
	}
	return afero.ReadFile(fs, "clip.wav")
}

func writeWAV(fs afero.Fs, path string, samples []int16, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	enc := wav.NewEncoder(f, sampleRate, wavBitDepth, 1, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}

	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode WAV: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalize WAV: %w", err)
	}
	return f.Close()
}

// DecodeWAV reads a PCM WAV into mono 16-bit samples. Multi-channel audio is
// averaged down and other bit depths are rescaled.
func DecodeWAV(r io.ReadSeeker) ([]int16, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("not a valid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read PCM: %w", err)
	}

	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}
	bitDepth := int(dec.BitDepth)

	out := make([]int16, 0, len(buf.Data)/channels)
	for i := 0; i+channels <= len(buf.Data); i += channels {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += buf.Data[i+c]
		}
		out = append(out, scaleTo16(sum/channels, bitDepth))
	}

	return out, int(dec.SampleRate), nil
}

func scaleTo16(v, bitDepth int) int16 {
	switch {
	case bitDepth == 8:
		// 8-bit WAV is unsigned
		return int16((v - 128) << 8)
	case bitDepth > 16:
		return int16(v >> (bitDepth - 16))
	}
	return int16(v)
}

// Duration returns how long samples last at sampleRate
func Duration(samples []int16, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)
}
