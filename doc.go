/*
Package vtrack detects and tracks road vehicles in video frames.

A Pipeline takes one BGR frame at a time, downsizes it to a 480 pixel high
working resolution, runs a YOLOv8 Detector on it, maps the boxes back to the
source frame, keeps the allowed vehicle classes and assigns persistent track
ids with ByteTrack.  The frame is returned annotated with boxes, labels and a
stats header.

Detector backends live in the engine package, the front ends (terminal,
browser viewer, single image JSON, conversion and benchmarking) in
cmd/vtrack.
*/
package vtrack
